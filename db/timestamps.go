package db

import "time"

// MarkEmergencySent records when a profile last fired an emergency alert.
func (s *SQLiteClient) MarkEmergencySent(profileID string, at time.Time) error {
	return s.UpdateProfile(profileID, ProfileUpdate{LastEmergencyMessageSent: &at})
}

// MarkDetected records when a profile was last detected.
func (s *SQLiteClient) MarkDetected(profileID string, at time.Time) error {
	return s.UpdateProfile(profileID, ProfileUpdate{LastDetectedAt: &at})
}
