// Package sqlite provides durable store adapters backed by SQLite.
// Suitable for single-instance deployments where policies and
// attachments must survive restarts.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// busyTimeout is how long SQLite waits for locks before failing.
const busyTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS policies (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL UNIQUE,
	inherit           TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	guardrails_add    TEXT NOT NULL DEFAULT '[]',
	guardrails_remove TEXT NOT NULL DEFAULT '[]',
	condition         TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	created_by        TEXT NOT NULL DEFAULT '',
	updated_by        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS attachments (
	id          TEXT PRIMARY KEY,
	policy_name TEXT NOT NULL REFERENCES policies(name),
	scope       TEXT NOT NULL DEFAULT '*',
	teams       TEXT NOT NULL DEFAULT '[]',
	keys        TEXT NOT NULL DEFAULT '[]',
	models      TEXT NOT NULL DEFAULT '[]',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attachments_policy_name ON attachments(policy_name);
`

// DB wraps the SQLite handle shared by the policy and attachment stores.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path with
// WAL journaling and runs schema migration.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	// modernc.org/sqlite takes pragmas via _pragma=name(value); the
	// mattn-style _journal_mode=... keys are silently ignored by it.
	dsn := fmt.Sprintf(
		"%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		path, int(busyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc's sqlite is single-writer; one connection avoids
	// SQLITE_BUSY under concurrent admin writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// marshalList encodes a string slice as a JSON column value.
func marshalList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(list)
	return string(b)
}

// unmarshalList decodes a JSON column value into a string slice.
func unmarshalList(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("malformed list column: %w", err)
	}
	return list, nil
}

// formatTime encodes a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime decodes a stored timestamp.
func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp column: %w", err)
	}
	return t, nil
}
