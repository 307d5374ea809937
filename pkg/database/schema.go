package database

import (
	"database/sql"
	"fmt"
)

// Schema statements applied at store startup. The CHECK constraints mirror
// the invariants the registry enforces so a bug upstream cannot corrupt the
// stored counters, and the foreign key cascades review deletion with the
// owning session.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id                   TEXT PRIMARY KEY,
		title                TEXT NOT NULL,
		description          TEXT NOT NULL DEFAULT '',
		instructor           TEXT NOT NULL DEFAULT '',
		category             TEXT NOT NULL DEFAULT '',
		level                TEXT NOT NULL DEFAULT '',
		thumbnail_url        TEXT NOT NULL DEFAULT '',
		scheduled_date       DATETIME,
		duration             INTEGER NOT NULL DEFAULT 60,
		status               TEXT NOT NULL DEFAULT 'scheduled'
			CHECK (status IN ('scheduled', 'live', 'ended')),
		room_name            TEXT NOT NULL UNIQUE,
		max_participants     INTEGER NOT NULL DEFAULT 100,
		current_participants INTEGER NOT NULL DEFAULT 0
			CHECK (current_participants >= 0 AND current_participants <= max_participants),
		creator_id           TEXT,
		created_at           DATETIME NOT NULL,
		started_at           DATETIME,
		ended_at             DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL,
		student_id   TEXT NOT NULL,
		student_name TEXT NOT NULL DEFAULT '',
		rating       INTEGER NOT NULL CHECK (rating >= 1 AND rating <= 5),
		comment      TEXT NOT NULL DEFAULT '',
		created_at   DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_creator ON sessions(creator_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_scheduled ON sessions(status, scheduled_date)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_session_time ON reviews(session_id, created_at)`,
}

// SchemaValidator verifies a database carries the expected schema.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"sessions": "Session data storage",
		"reviews":  "Review data storage",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_sessions_status":      "Session status lookups",
		"idx_sessions_creator":     "Session ownership queries",
		"idx_sessions_scheduled":   "Upcoming session queries",
		"idx_reviews_session_time": "Review listing per session",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// tableExists checks if a table exists in the database.
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// indexExists checks if an index exists in the database.
func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
