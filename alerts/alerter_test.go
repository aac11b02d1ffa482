package alerts

import (
	"errors"
	"strings"
	"testing"
	"time"

	"soundsense/models"
)

type fakeStore struct {
	contacts    []models.EmergencyContact
	contactsErr error
	markedID    string
	markedAt    time.Time
	markCalls   int
}

func (s *fakeStore) GetActiveContacts() ([]models.EmergencyContact, error) {
	return s.contacts, s.contactsErr
}

func (s *fakeStore) MarkEmergencySent(profileID string, at time.Time) error {
	s.markedID = profileID
	s.markedAt = at
	s.markCalls++
	return nil
}

type fakeSender struct {
	sent      []string
	failPhone string
	sendsSeen *int
}

func (s *fakeSender) Send(phone, text string) error {
	if s.sendsSeen != nil {
		*s.sendsSeen++
	}
	if phone == s.failPhone {
		return errors.New("delivery failed")
	}
	s.sent = append(s.sent, phone)
	return nil
}

func criticalProfile(lastSent *time.Time, cooldownMinutes int) models.SoundProfile {
	return models.SoundProfile{
		ID:                       "profile-1",
		Name:                     "smoke_detector",
		DisplayName:              "Smoke Detector",
		IsEnabled:                true,
		IsCritical:               true,
		EmergencyCooldownMinutes: cooldownMinutes,
		LastEmergencyMessageSent: lastSent,
	}
}

func newTestAlerter(store Store, sender MessageSender, now time.Time) *Alerter {
	alerter := NewAlerter(store, sender)
	alerter.now = func() time.Time { return now }
	return alerter
}

func TestCooldownBoundarySuppressesJustInside(t *testing.T) {
	t.Parallel()

	now := time.Now()
	const cooldownMinutes = 5
	lastSent := now.Add(-cooldownMinutes*time.Minute + time.Millisecond)

	store := &fakeStore{contacts: []models.EmergencyContact{{ID: "c1", Phone: "+1", IsActive: true}}}
	alerter := newTestAlerter(store, &fakeSender{}, now)

	outcome := alerter.HandleCriticalDetection(criticalProfile(&lastSent, cooldownMinutes), 0.9)
	if outcome.State != StateSuppressed {
		t.Fatalf("expected suppressed, got %s", outcome.State)
	}
	if store.markCalls != 0 {
		t.Fatal("suppressed detection must not touch the timestamp")
	}
}

func TestCooldownBoundaryFiresJustOutside(t *testing.T) {
	t.Parallel()

	now := time.Now()
	const cooldownMinutes = 5
	lastSent := now.Add(-cooldownMinutes*time.Minute - time.Millisecond)

	store := &fakeStore{contacts: []models.EmergencyContact{{ID: "c1", Phone: "+1", IsActive: true}}}
	sender := &fakeSender{}
	alerter := newTestAlerter(store, sender, now)

	outcome := alerter.HandleCriticalDetection(criticalProfile(&lastSent, cooldownMinutes), 0.9)
	if outcome.State != StateFired {
		t.Fatalf("expected fired, got %s", outcome.State)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sender.sent))
	}
}

func TestNeverSentProfileIsNeverSuppressed(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := &fakeStore{contacts: []models.EmergencyContact{{ID: "c1", Phone: "+1", IsActive: true}}}
	alerter := newTestAlerter(store, &fakeSender{}, now)

	outcome := alerter.HandleCriticalDetection(criticalProfile(nil, 60), 0.8)
	if outcome.State != StateFired {
		t.Fatalf("expected fired for never-sent profile, got %s", outcome.State)
	}
}

func TestDisabledProfileIsNeverEvaluated(t *testing.T) {
	t.Parallel()

	store := &fakeStore{contacts: []models.EmergencyContact{{ID: "c1", Phone: "+1", IsActive: true}}}
	sender := &fakeSender{}
	alerter := newTestAlerter(store, sender, time.Now())

	profile := criticalProfile(nil, 5)
	profile.IsEnabled = false

	outcome := alerter.HandleCriticalDetection(profile, 0.99)
	if outcome.State != StateIdle {
		t.Fatalf("expected idle for disabled profile, got %s", outcome.State)
	}
	if store.markCalls != 0 || len(sender.sent) != 0 {
		t.Fatal("disabled profile triggered side effects")
	}
}

func TestPerContactFailureDoesNotBlockRemaining(t *testing.T) {
	t.Parallel()

	store := &fakeStore{contacts: []models.EmergencyContact{
		{ID: "c1", Phone: "+1", IsActive: true},
		{ID: "c2", Phone: "+2", IsActive: true},
		{ID: "c3", Phone: "+3", IsActive: true},
	}}
	sender := &fakeSender{failPhone: "+2"}
	alerter := newTestAlerter(store, sender, time.Now())

	outcome := alerter.HandleCriticalDetection(criticalProfile(nil, 5), 0.9)
	if outcome.State != StateFired {
		t.Fatalf("expected fired, got %s", outcome.State)
	}
	if outcome.Delivered != 2 || outcome.Failed != 1 {
		t.Fatalf("expected 2 delivered / 1 failed, got %d / %d", outcome.Delivered, outcome.Failed)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected remaining contacts to be attempted, got %v", sender.sent)
	}
}

func TestTimestampUpdatedOncePerFiringBeforeFanOut(t *testing.T) {
	t.Parallel()

	sends := 0
	store := &fakeStore{contacts: []models.EmergencyContact{
		{ID: "c1", Phone: "+1", IsActive: true},
		{ID: "c2", Phone: "+2", IsActive: true},
	}}
	sender := &fakeSender{failPhone: "+1", sendsSeen: &sends}
	now := time.Now()
	alerter := newTestAlerter(store, sender, now)

	alerter.HandleCriticalDetection(criticalProfile(nil, 5), 0.9)
	if store.markCalls != 1 {
		t.Fatalf("expected exactly one timestamp update, got %d", store.markCalls)
	}
	if store.markedID != "profile-1" || !store.markedAt.Equal(now) {
		t.Fatalf("timestamp update mismatch: %s @ %v", store.markedID, store.markedAt)
	}
}

func TestComposeMessageContents(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	text := ComposeMessage("Fire Alarm", 0.87, at)

	if !strings.Contains(text, "Fire Alarm") {
		t.Fatalf("message missing sound name: %s", text)
	}
	if !strings.Contains(text, "09:26:53") {
		t.Fatalf("message missing local time: %s", text)
	}
	if !strings.Contains(text, "87%") {
		t.Fatalf("message missing confidence percentage: %s", text)
	}
}

func TestUnconfiguredTwilioSenderFailsPerContact(t *testing.T) {
	t.Parallel()

	sender := &TwilioSender{}
	if sender.Configured() {
		t.Fatal("empty sender must report unconfigured")
	}
	if err := sender.Send("+1", "hello"); err == nil {
		t.Fatal("expected error from unconfigured sender")
	}
}
