package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"soundsense/models"
	"soundsense/utils"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// SQLiteClient backs the sound profile, emergency contact and detection log
// repositories with a single on-device database file.
type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	// Create the directory if it doesn't exist (cross-platform)
	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000" // 5 seconds
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createProfilesTable := `
    CREATE TABLE IF NOT EXISTS sound_profiles (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL UNIQUE,
        display_name TEXT NOT NULL,
        is_builtin INTEGER NOT NULL DEFAULT 0,
        is_enabled INTEGER NOT NULL DEFAULT 1,
        taxonomy_label TEXT,
        embedding TEXT,
        threshold REAL NOT NULL DEFAULT 0.5,
        is_critical INTEGER NOT NULL DEFAULT 0,
        vibration_pattern TEXT NOT NULL DEFAULT '[]',
        emergency_cooldown_minutes INTEGER NOT NULL DEFAULT 5,
        last_detected_at DATETIME,
        last_emergency_message_sent DATETIME,
        snoozed_until DATETIME
    );
    `

	createContactsTable := `
    CREATE TABLE IF NOT EXISTS emergency_contacts (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        phone TEXT NOT NULL,
        is_active INTEGER NOT NULL DEFAULT 1
    );
    `

	createDetectionLogTable := `
    CREATE TABLE IF NOT EXISTS detection_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        profile_id TEXT NOT NULL,
        label TEXT NOT NULL,
        confidence REAL NOT NULL DEFAULT 0,
        was_emergency INTEGER NOT NULL DEFAULT 0,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_detection_log_timestamp ON detection_log(timestamp);
    CREATE INDEX IF NOT EXISTS idx_detection_log_profile ON detection_log(profile_id);
    `

	for _, ddl := range []string{createProfilesTable, createContactsTable, createDetectionLogTable} {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("error creating table: %s", err)
		}
	}

	return nil
}

func (s *SQLiteClient) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const profileColumns = `id, name, display_name, is_builtin, is_enabled, taxonomy_label,
       embedding, threshold, is_critical, vibration_pattern,
       emergency_cooldown_minutes, last_detected_at, last_emergency_message_sent, snoozed_until`

func scanProfile(row interface{ Scan(...interface{}) error }) (models.SoundProfile, error) {
	var p models.SoundProfile
	var isBuiltIn, isEnabled, isCritical int
	var taxonomyLabel, embedding sql.NullString
	var pattern string
	var lastDetected, lastEmergency, snoozedUntil sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.DisplayName,
		&isBuiltIn,
		&isEnabled,
		&taxonomyLabel,
		&embedding,
		&p.Threshold,
		&isCritical,
		&pattern,
		&p.EmergencyCooldownMinutes,
		&lastDetected,
		&lastEmergency,
		&snoozedUntil,
	)
	if err != nil {
		return models.SoundProfile{}, err
	}

	p.IsBuiltIn = isBuiltIn == 1
	p.IsEnabled = isEnabled == 1
	p.IsCritical = isCritical == 1
	p.TaxonomyLabel = taxonomyLabel.String
	p.Embedding = embedding.String

	if err := json.Unmarshal([]byte(pattern), &p.VibrationPattern); err != nil {
		return models.SoundProfile{}, fmt.Errorf("error parsing vibration pattern for %s: %s", p.ID, err)
	}

	if lastDetected.Valid {
		t := lastDetected.Time
		p.LastDetectedAt = &t
	}
	if lastEmergency.Valid {
		t := lastEmergency.Time
		p.LastEmergencyMessageSent = &t
	}
	if snoozedUntil.Valid {
		t := snoozedUntil.Time
		p.SnoozedUntil = &t
	}

	return p, nil
}

// GetProfileByID fetches one profile; found is false for an unknown id.
func (s *SQLiteClient) GetProfileByID(id string) (models.SoundProfile, bool, error) {
	row := s.db.QueryRow("SELECT "+profileColumns+" FROM sound_profiles WHERE id = ?", id)
	profile, err := scanProfile(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.SoundProfile{}, false, nil
		}
		return models.SoundProfile{}, false, fmt.Errorf("error retrieving profile: %s", err)
	}
	return profile, true, nil
}

func (s *SQLiteClient) queryProfiles(where string, args ...interface{}) ([]models.SoundProfile, error) {
	query := "SELECT " + profileColumns + " FROM sound_profiles"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY display_name"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying profiles: %s", err)
	}
	defer rows.Close()

	var profiles []models.SoundProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning profile: %s", err)
		}
		profiles = append(profiles, profile)
	}

	return profiles, rows.Err()
}

// GetActiveProfiles returns all enabled profiles.
func (s *SQLiteClient) GetActiveProfiles() ([]models.SoundProfile, error) {
	return s.queryProfiles("is_enabled = 1")
}

// GetCustomProfiles returns all user-enrolled profiles regardless of state.
func (s *SQLiteClient) GetCustomProfiles() ([]models.SoundProfile, error) {
	return s.queryProfiles("is_builtin = 0")
}

// GetAllProfiles returns every profile.
func (s *SQLiteClient) GetAllProfiles() ([]models.SoundProfile, error) {
	return s.queryProfiles("")
}

// ProfileUpdate carries targeted field updates; nil fields are untouched.
type ProfileUpdate struct {
	DisplayName              *string
	IsEnabled                *bool
	Threshold                *float64
	IsCritical               *bool
	VibrationPattern         []int64
	EmergencyCooldownMinutes *int
	Embedding                *string
	LastDetectedAt           *time.Time
	LastEmergencyMessageSent *time.Time
	SnoozedUntil             *time.Time
}

// UpdateProfile applies the non-nil fields of the update to one profile.
func (s *SQLiteClient) UpdateProfile(id string, update ProfileUpdate) error {
	var sets []string
	var args []interface{}

	appendSet := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if update.DisplayName != nil {
		appendSet("display_name", *update.DisplayName)
	}
	if update.IsEnabled != nil {
		appendSet("is_enabled", boolToInt(*update.IsEnabled))
	}
	if update.Threshold != nil {
		appendSet("threshold", *update.Threshold)
	}
	if update.IsCritical != nil {
		appendSet("is_critical", boolToInt(*update.IsCritical))
	}
	if update.VibrationPattern != nil {
		encoded, err := json.Marshal(update.VibrationPattern)
		if err != nil {
			return fmt.Errorf("error encoding vibration pattern: %s", err)
		}
		appendSet("vibration_pattern", string(encoded))
	}
	if update.EmergencyCooldownMinutes != nil {
		appendSet("emergency_cooldown_minutes", *update.EmergencyCooldownMinutes)
	}
	if update.Embedding != nil {
		appendSet("embedding", *update.Embedding)
	}
	if update.LastDetectedAt != nil {
		appendSet("last_detected_at", *update.LastDetectedAt)
	}
	if update.LastEmergencyMessageSent != nil {
		appendSet("last_emergency_message_sent", *update.LastEmergencyMessageSent)
	}
	if update.SnoozedUntil != nil {
		appendSet("snoozed_until", *update.SnoozedUntil)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	result, err := s.db.Exec("UPDATE sound_profiles SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("error updating profile: %s", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("profile %s not found", id)
	}

	return nil
}

// InsertProfile stores a new profile, generating an id when absent.
func (s *SQLiteClient) InsertProfile(profile models.SoundProfile) (models.SoundProfile, error) {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.VibrationPattern == nil {
		profile.VibrationPattern = []int64{}
	}

	pattern, err := json.Marshal(profile.VibrationPattern)
	if err != nil {
		return models.SoundProfile{}, fmt.Errorf("error encoding vibration pattern: %s", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sound_profiles (
			id, name, display_name, is_builtin, is_enabled, taxonomy_label,
			embedding, threshold, is_critical, vibration_pattern,
			emergency_cooldown_minutes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.Name,
		profile.DisplayName,
		boolToInt(profile.IsBuiltIn),
		boolToInt(profile.IsEnabled),
		nullableString(profile.TaxonomyLabel),
		nullableString(profile.Embedding),
		profile.Threshold,
		boolToInt(profile.IsCritical),
		string(pattern),
		profile.EmergencyCooldownMinutes,
	)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "UNIQUE constraint") || strings.Contains(errMsg, "constraint failed") {
			return models.SoundProfile{}, fmt.Errorf("profile with name %s already exists: %v", profile.Name, err)
		}
		return models.SoundProfile{}, fmt.Errorf("error inserting profile: %s", err)
	}

	return profile, nil
}

// GetActiveContacts returns all active emergency contacts.
func (s *SQLiteClient) GetActiveContacts() ([]models.EmergencyContact, error) {
	rows, err := s.db.Query("SELECT id, name, phone, is_active FROM emergency_contacts WHERE is_active = 1 ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("error querying contacts: %s", err)
	}
	defer rows.Close()

	var contacts []models.EmergencyContact
	for rows.Next() {
		var c models.EmergencyContact
		var isActive int
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &isActive); err != nil {
			return nil, fmt.Errorf("error scanning contact: %s", err)
		}
		c.IsActive = isActive == 1
		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

// InsertContact stores a new emergency contact.
func (s *SQLiteClient) InsertContact(contact models.EmergencyContact) (models.EmergencyContact, error) {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}

	_, err := s.db.Exec(
		"INSERT INTO emergency_contacts (id, name, phone, is_active) VALUES (?, ?, ?, ?)",
		contact.ID, contact.Name, contact.Phone, boolToInt(contact.IsActive),
	)
	if err != nil {
		return models.EmergencyContact{}, fmt.Errorf("error inserting contact: %s", err)
	}

	return contact, nil
}

// InsertDetection appends one row to the detection log.
func (s *SQLiteClient) InsertDetection(event models.DetectionEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO detection_log (profile_id, label, confidence, was_emergency, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		event.ProfileID,
		event.Label,
		event.Confidence,
		boolToInt(event.WasEmergency),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("error storing detection: %s", err)
	}
	return nil
}

// RecentDetections returns the newest log rows, most recent first.
func (s *SQLiteClient) RecentDetections(limit int) ([]models.DetectionEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, profile_id, label, confidence, was_emergency, timestamp
		FROM detection_log
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying detection log: %s", err)
	}
	defer rows.Close()

	var events []models.DetectionEvent
	for rows.Next() {
		var e models.DetectionEvent
		var wasEmergency int
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Label, &e.Confidence, &wasEmergency, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("error scanning detection: %s", err)
		}
		e.WasEmergency = wasEmergency == 1
		events = append(events, e)
	}

	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
