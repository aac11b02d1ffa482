package db

import (
	"fmt"
	"strings"

	"soundsense/models"
)

// builtinSeed describes one default profile shipped with the app.
type builtinSeed struct {
	label     string
	threshold float64
	critical  bool
	cooldown  int
	pattern   []int64
}

var builtinSeeds = []builtinSeed{
	{label: "Fire Alarm", threshold: 0.5, critical: true, cooldown: 5, pattern: []int64{0, 800, 200, 800, 200, 800}},
	{label: "Smoke Detector", threshold: 0.5, critical: true, cooldown: 5, pattern: []int64{0, 800, 200, 800, 200, 800}},
	{label: "Siren", threshold: 0.45, critical: true, cooldown: 10, pattern: []int64{0, 600, 150, 600, 150, 600}},
	{label: "Gunshot", threshold: 0.6, critical: true, cooldown: 10, pattern: []int64{0, 1000, 100, 1000}},
	{label: "Glass Breaking", threshold: 0.55, critical: true, cooldown: 10, pattern: []int64{0, 500, 100, 500}},
	{label: "Car Alarm", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 800, 200, 800}},
	{label: "Doorbell", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 300, 100, 300}},
	{label: "Door Knock", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 300, 100, 300}},
	{label: "Baby Cry", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 400, 150, 400, 150, 400}},
	{label: "Dog Bark", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 300}},
	{label: "Cat Meow", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 300}},
	{label: "Car Horn", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 500, 100, 500}},
	{label: "Telephone Ring", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 300, 100, 300}},
	{label: "Alarm Clock", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 400, 100, 400}},
	{label: "Kettle Whistle", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 300}},
	{label: "Microwave Beep", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 200, 100, 200}},
	{label: "Water Running", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 300}},
	{label: "Shout", threshold: 0.5, critical: false, cooldown: 0, pattern: []int64{0, 400, 100, 400}},
}

// SeedBuiltinProfiles inserts the default built-in sound profiles on first
// run. Existing rows are left untouched so user edits survive restarts.
func (s *SQLiteClient) SeedBuiltinProfiles() error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sound_profiles WHERE is_builtin = 1").Scan(&count); err != nil {
		return fmt.Errorf("error counting builtin profiles: %s", err)
	}
	if count > 0 {
		return nil
	}

	for _, seed := range builtinSeeds {
		profile := models.SoundProfile{
			Name:                     seedName(seed.label),
			DisplayName:              seed.label,
			IsBuiltIn:                true,
			IsEnabled:                true,
			TaxonomyLabel:            seed.label,
			Threshold:                seed.threshold,
			IsCritical:               seed.critical,
			VibrationPattern:         seed.pattern,
			EmergencyCooldownMinutes: seed.cooldown,
		}
		if _, err := s.InsertProfile(profile); err != nil {
			return fmt.Errorf("error seeding profile %s: %w", seed.label, err)
		}
	}

	return nil
}

func seedName(label string) string {
	return strings.ReplaceAll(strings.ToLower(label), " ", "_")
}
