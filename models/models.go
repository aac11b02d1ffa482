package models

import "time"

// SoundProfile describes one detectable sound: either a built-in taxonomy
// entry or a user-enrolled custom sound backed by a prototype embedding.
// Profiles are owned by the persistence layer; the detection core reads them
// immutably per pass and requests targeted field updates.
type SoundProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	IsBuiltIn   bool   `json:"isBuiltIn"`
	IsEnabled   bool   `json:"isEnabled"`

	// TaxonomyLabel names the built-in vocabulary entry this profile listens
	// for; empty for custom profiles.
	TaxonomyLabel string `json:"taxonomyLabel,omitempty"`

	// Embedding is the serialized prototype vector (JSON float array) for
	// custom profiles; empty for built-ins.
	Embedding string `json:"embedding,omitempty"`

	Threshold                float64 `json:"threshold"`
	IsCritical               bool    `json:"isCritical"`
	VibrationPattern         []int64 `json:"vibrationPattern"`
	EmergencyCooldownMinutes int     `json:"emergencyCooldownMinutes"`

	LastDetectedAt           *time.Time `json:"lastDetectedAt,omitempty"`
	LastEmergencyMessageSent *time.Time `json:"lastEmergencyMessageSent,omitempty"`
	SnoozedUntil             *time.Time `json:"snoozedUntil,omitempty"`
}

// Snoozed reports whether the profile is snoozed at the given instant.
func (p *SoundProfile) Snoozed(now time.Time) bool {
	return p.SnoozedUntil != nil && now.Before(*p.SnoozedUntil)
}

// EmergencyContact is a recipient of emergency alert messages. Read-only to
// the detection core.
type EmergencyContact struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	IsActive bool   `json:"isActive"`
}

// ClassificationResult is one entry in the observable detection feed.
// Immutable once created.
type ClassificationResult struct {
	ProfileID  string    `json:"profileId,omitempty"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"` // "taxonomy" or "custom"
	Timestamp  time.Time `json:"timestamp"`
}

// DetectionEvent is a persisted detection-log row.
type DetectionEvent struct {
	ID           int64     `json:"id"`
	ProfileID    string    `json:"profileId"`
	Label        string    `json:"label"`
	Confidence   float64   `json:"confidence"`
	WasEmergency bool      `json:"wasEmergency"`
	Timestamp    time.Time `json:"timestamp"`
}

// VibrationPayload is the haptic instruction routed back to the capture
// device when a detection clears its threshold.
type VibrationPayload struct {
	Pattern []int64 `json:"pattern"` // alternating on/off durations in ms
	Repeat  bool    `json:"repeat"`
}

// ListeningState is surfaced to feed observers when the audio session
// starts or ends.
type ListeningState struct {
	Listening bool   `json:"listening"`
	Reason    string `json:"reason,omitempty"`
}
