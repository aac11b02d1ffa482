package alerts

// Emergency Alert State Machine
//
// Each critical detection walks one profile through
// Idle -> CooldownCheck -> Suppressed | Fired -> Idle. The cooldown is
// evaluated per profile against its lastEmergencyMessageSent timestamp; a
// profile that has never fired is never suppressed. On Fired the timestamp
// is written back before contact fan-out so the cooldown holds even when
// every delivery fails. Contact deliveries are independent: one failed send
// is logged and the remaining contacts are still attempted, with no retry.

import (
	"fmt"
	"log/slog"
	"time"

	"soundsense/models"
	"soundsense/utils"

	"github.com/mdobak/go-xerrors"
)

// State names the outcome of one critical detection evaluation.
type State string

const (
	StateIdle       State = "idle"
	StateSuppressed State = "suppressed"
	StateFired      State = "fired"
)

// Outcome summarizes one pass through the state machine.
type Outcome struct {
	State     State
	Delivered int
	Failed    int
}

// Store is the slice of persistence the alerter needs.
type Store interface {
	GetActiveContacts() ([]models.EmergencyContact, error)
	MarkEmergencySent(profileID string, at time.Time) error
}

// MessageSender delivers one alert message to one phone number.
type MessageSender interface {
	Send(phone, text string) error
}

// Alerter owns emergency fan-out for critical sound profiles.
type Alerter struct {
	store  Store
	sender MessageSender
	logger *slog.Logger
	now    func() time.Time
}

// NewAlerter wires the state machine to its persistence and delivery
// boundaries.
func NewAlerter(store Store, sender MessageSender) *Alerter {
	return &Alerter{
		store:  store,
		sender: sender,
		logger: utils.GetLogger(),
		now:    time.Now,
	}
}

// HandleCriticalDetection evaluates one detection against the profile's
// cooldown and, when armed, fans an alert message out to every active
// emergency contact. Disabled profiles are never evaluated.
func (a *Alerter) HandleCriticalDetection(profile models.SoundProfile, confidence float64) Outcome {
	if !profile.IsEnabled || !profile.IsCritical {
		return Outcome{State: StateIdle}
	}

	now := a.now()
	if suppressed(profile, now) {
		a.logger.Info("emergency alert suppressed by cooldown",
			slog.String("profileID", profile.ID),
			slog.String("label", profile.DisplayName),
			slog.Int("cooldownMinutes", profile.EmergencyCooldownMinutes))
		return Outcome{State: StateSuppressed}
	}

	// Re-arm the cooldown before fan-out, once per firing event, so partial
	// delivery failure cannot cause a rapid alert storm.
	if err := a.store.MarkEmergencySent(profile.ID, now); err != nil {
		a.logger.Error("failed to update emergency timestamp",
			slog.String("profileID", profile.ID),
			slog.Any("error", xerrors.New(err)))
	}

	contacts, err := a.store.GetActiveContacts()
	if err != nil {
		a.logger.Error("failed to load emergency contacts",
			slog.String("profileID", profile.ID),
			slog.Any("error", xerrors.New(err)))
		return Outcome{State: StateFired}
	}

	text := ComposeMessage(profile.DisplayName, confidence, now)

	outcome := Outcome{State: StateFired}
	for _, contact := range contacts {
		if err := a.sender.Send(contact.Phone, text); err != nil {
			outcome.Failed++
			a.logger.Error("failed to deliver emergency message",
				slog.String("profileID", profile.ID),
				slog.String("contactID", contact.ID),
				slog.Any("error", xerrors.New(err)))
			continue
		}
		outcome.Delivered++
	}

	a.logger.Info("emergency alert fired",
		slog.String("profileID", profile.ID),
		slog.String("label", profile.DisplayName),
		slog.Int("delivered", outcome.Delivered),
		slog.Int("failed", outcome.Failed))

	return outcome
}

// suppressed reports whether the profile's cooldown is still active.
// A profile that has never sent is never suppressed.
func suppressed(profile models.SoundProfile, now time.Time) bool {
	if profile.LastEmergencyMessageSent == nil {
		return false
	}
	cooldown := time.Duration(profile.EmergencyCooldownMinutes) * time.Minute
	return now.Sub(*profile.LastEmergencyMessageSent) < cooldown
}

// ComposeMessage renders the alert text sent to every contact of one firing
// event: sound name, local time, confidence percentage.
func ComposeMessage(displayName string, confidence float64, at time.Time) string {
	return fmt.Sprintf("Emergency: %s detected at %s (confidence %.0f%%). Sent automatically by SoundSense.",
		displayName, at.Local().Format("15:04:05"), confidence*100)
}
