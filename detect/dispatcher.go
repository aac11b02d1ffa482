package detect

// Detection Dispatch
//
// Once per completed window the dispatcher decides what happens downstream:
// nothing (below threshold, snoozed, or no matching profile), or a feed
// entry plus a vibration payload routed back to the capture device, a
// detection-log row, and — for critical profiles — a handoff to the
// emergency alert state machine. Every side effect is fire-and-forget with
// respect to the classification loop.

import (
	"log/slog"
	"sync"
	"time"

	"soundsense/alerts"
	"soundsense/match"
	"soundsense/models"
	"soundsense/taxonomy"
	"soundsense/utils"

	"github.com/mdobak/go-xerrors"
)

// Store is the slice of persistence the dispatcher needs.
type Store interface {
	GetActiveProfiles() ([]models.SoundProfile, error)
	GetCustomProfiles() ([]models.SoundProfile, error)
	MarkDetected(profileID string, at time.Time) error
	InsertDetection(event models.DetectionEvent) error
}

// CriticalHandler receives detections on critical profiles.
type CriticalHandler interface {
	HandleCriticalDetection(profile models.SoundProfile, confidence float64) alerts.Outcome
}

// VibrationRouter forwards a haptic payload toward the capture device.
type VibrationRouter interface {
	RouteVibration(payload models.VibrationPayload) error
}

// Dispatcher gates classifier outputs and triggers downstream actions.
type Dispatcher struct {
	store         Store
	alerter       CriticalHandler
	feed          *Feed
	vibration     VibrationRouter
	minConfidence float64
	logger        *slog.Logger
	now           func() time.Time

	// pending tracks in-flight side-effect goroutines so tests and session
	// teardown can wait for them.
	pending sync.WaitGroup
}

// NewDispatcher wires the dispatcher to its collaborators. minConfidence is
// the global floor applied on top of each profile's own threshold.
func NewDispatcher(store Store, alerter CriticalHandler, feed *Feed, vibration VibrationRouter, minConfidence float64) *Dispatcher {
	return &Dispatcher{
		store:         store,
		alerter:       alerter,
		feed:          feed,
		vibration:     vibration,
		minConfidence: minConfidence,
		logger:        utils.GetLogger(),
		now:           time.Now,
	}
}

// Feed exposes the observable event feed.
func (d *Dispatcher) Feed() *Feed {
	return d.feed
}

// DispatchTaxonomy handles one smoothed taxonomy prediction. The prediction
// only dispatches when an enabled built-in profile listens for its label and
// the confidence clears both the global floor and the profile threshold.
func (d *Dispatcher) DispatchTaxonomy(pred taxonomy.Prediction) {
	if pred.Label == "" || pred.Confidence < d.minConfidence {
		return
	}

	profiles, err := d.store.GetActiveProfiles()
	if err != nil {
		d.logger.Error("failed to load active profiles", slog.Any("error", xerrors.New(err)))
		return
	}

	for _, profile := range profiles {
		if !profile.IsBuiltIn || profile.TaxonomyLabel != pred.Label {
			continue
		}
		if pred.Confidence < profile.Threshold {
			continue
		}
		d.dispatch(profile, pred.Label, pred.Confidence, "taxonomy")
		return
	}
}

// DispatchCustomMatch handles one accepted custom-sound match. The matcher
// has already applied the profile threshold; the global floor still applies.
func (d *Dispatcher) DispatchCustomMatch(m match.Match) {
	if m.Similarity < d.minConfidence {
		return
	}
	d.dispatch(m.Profile, m.Profile.DisplayName, m.Similarity, "custom")
}

// dispatch runs all side effects for one accepted detection. It returns
// immediately; the work happens on its own goroutine so the classification
// loop is never blocked.
func (d *Dispatcher) dispatch(profile models.SoundProfile, label string, confidence float64, source string) {
	now := d.now()
	if profile.Snoozed(now) {
		d.logger.Debug("detection snoozed",
			slog.String("profileID", profile.ID),
			slog.String("label", label))
		return
	}

	result := models.ClassificationResult{
		ProfileID:  profile.ID,
		Label:      label,
		Confidence: confidence,
		Source:     source,
		Timestamp:  now,
	}

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()

		d.feed.PublishResult(result)

		if d.vibration != nil && len(profile.VibrationPattern) > 0 {
			payload := models.VibrationPayload{Pattern: profile.VibrationPattern}
			if err := d.vibration.RouteVibration(payload); err != nil {
				d.logger.Warn("failed to route vibration payload",
					slog.String("profileID", profile.ID),
					slog.Any("error", err))
			}
		}

		if err := d.store.MarkDetected(profile.ID, now); err != nil {
			d.logger.Warn("failed to update last-detected timestamp",
				slog.String("profileID", profile.ID),
				slog.Any("error", err))
		}

		wasEmergency := false
		if profile.IsCritical && d.alerter != nil {
			outcome := d.alerter.HandleCriticalDetection(profile, confidence)
			wasEmergency = outcome.State == alerts.StateFired
		}

		if err := d.store.InsertDetection(models.DetectionEvent{
			ProfileID:    profile.ID,
			Label:        label,
			Confidence:   confidence,
			WasEmergency: wasEmergency,
			Timestamp:    now,
		}); err != nil {
			d.logger.Warn("failed to store detection log entry",
				slog.String("profileID", profile.ID),
				slog.Any("error", err))
		}

		d.logger.Info("detection dispatched",
			slog.String("profileID", profile.ID),
			slog.String("label", label),
			slog.String("source", source),
			slog.Float64("confidence", confidence),
			slog.Bool("emergency", wasEmergency))
	}()
}

// Wait blocks until all in-flight side effects have completed.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}
