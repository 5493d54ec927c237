// Package sqlite provides a SQLite-backed event store for workspaces where
// the JSONL log is not enough (large histories, concurrent readers).
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opspulse/opspulse/internal/storage"
	"github.com/opspulse/opspulse/pkg/models"

	_ "modernc.org/sqlite"
)

// Store implements storage.EventStore on a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates the data directory if needed, opens events.db, and runs the
// non-destructive migration.
func Open(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(basePath, "events.db"))
	if err != nil {
		return nil, fmt.Errorf("opening events database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating events database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			scope      TEXT NOT NULL,
			event_id   TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_ts   TEXT NOT NULL,
			payload    TEXT,
			evidence   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_scope_seq ON events(scope, seq);
	`)
	return err
}

// Append inserts events in one transaction.
func (s *Store) Append(scope string, events []models.Event) error {
	if err := storage.ValidateScope(scope); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO events (scope, event_id, event_type, event_ts, payload, evidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, evt := range events {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return fmt.Errorf("marshalling payload for event %s: %w", evt.ID, err)
		}
		evidence, err := json.Marshal(evt.EvidenceRefs)
		if err != nil {
			return fmt.Errorf("marshalling evidence for event %s: %w", evt.ID, err)
		}
		if _, err := stmt.Exec(scope, evt.ID, string(evt.Type), evt.OccurredAt.UTC().Format(timeLayout), string(payload), string(evidence)); err != nil {
			return fmt.Errorf("inserting event %s: %w", evt.ID, err)
		}
	}
	return tx.Commit()
}

const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func (s *Store) ReadAll(scope string) ([]models.Event, error) {
	return s.ReadSince(scope, "")
}

// ReadSince returns events past the numeric cursor watermark, in insertion
// order. Events with non-numeric IDs are always included.
func (s *Store) ReadSince(scope string, afterID string) ([]models.Event, error) {
	if err := storage.ValidateScope(scope); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT event_id, event_type, event_ts, payload, evidence
		FROM events WHERE scope = ? ORDER BY seq
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	after, afterOK := storage.NumericID(afterID)

	var events []models.Event
	for rows.Next() {
		var evt models.Event
		var ts, payload, evidence string
		if err := rows.Scan(&evt.ID, &evt.Type, &ts, &payload, &evidence); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		occurred, err := parseTime(ts)
		if err != nil {
			continue // skip malformed rows
		}
		evt.OccurredAt = occurred
		if payload != "" {
			_ = json.Unmarshal([]byte(payload), &evt.Payload)
		}
		if evidence != "" {
			_ = json.Unmarshal([]byte(evidence), &evt.EvidenceRefs)
		}
		if afterOK {
			if n, ok := storage.NumericID(evt.ID); ok && n <= after {
				continue
			}
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
