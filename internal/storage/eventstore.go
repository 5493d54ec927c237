// Package storage persists events, per-scope signal state, and pipeline run
// records for the opspulse workspace. A scope is the (tenant, project) key
// that isolates all data for one engagement.
package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/opspulse/opspulse/pkg/models"
)

// ErrScopeNotFound indicates no data exists for the requested scope.
var ErrScopeNotFound = errors.New("scope not found")

// EventStore persists the per-scope domain event log.
type EventStore interface {
	Append(scope string, events []models.Event) error
	ReadAll(scope string) ([]models.Event, error)
	// ReadSince returns events with a numeric ID greater than afterID.
	// An empty afterID returns everything; events with non-numeric IDs are
	// always included since the cursor cannot order them.
	ReadSince(scope string, afterID string) ([]models.Event, error)
	Close() error
}

// jsonlEventStore implements EventStore using one append-only JSONL file
// per scope under scopes/<scope>/events.jsonl.
type jsonlEventStore struct {
	basePath string
	mu       sync.Mutex
}

// NewJSONLEventStore creates an EventStore backed by JSONL files under the
// given base directory.
func NewJSONLEventStore(basePath string) EventStore {
	return &jsonlEventStore{basePath: basePath}
}

func (s *jsonlEventStore) eventsPath(scope string) (string, error) {
	dir, err := ScopeDir(s.basePath, scope)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "events.jsonl"), nil
}

// Append writes each event as one JSON line.
func (s *jsonlEventStore) Append(scope string, events []models.Event) error {
	path, err := s.eventsPath(scope)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating scope directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshalling event %s: %w", evt.ID, err)
		}
		data = append(data, '\n')
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("writing event %s: %w", evt.ID, err)
		}
	}
	return nil
}

func (s *jsonlEventStore) ReadAll(scope string) ([]models.Event, error) {
	return s.ReadSince(scope, "")
}

func (s *jsonlEventStore) ReadSince(scope string, afterID string) ([]models.Event, error) {
	path, err := s.eventsPath(scope)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer f.Close()

	var events []models.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt models.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			continue // skip malformed lines
		}
		if eventAfter(evt.ID, afterID) {
			events = append(events, evt)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}
	return events, nil
}

func (s *jsonlEventStore) Close() error { return nil }

// eventAfter reports whether an event ID is past the cursor watermark.
func eventAfter(id, afterID string) bool {
	if strings.TrimSpace(afterID) == "" {
		return true
	}
	after, afterOK := NumericID(afterID)
	n, ok := NumericID(id)
	if !afterOK || !ok {
		return true
	}
	return n > after
}

// NumericID parses an event ID as a finite number, mirroring the fold's
// canonical ordering rules.
func NumericID(id string) (float64, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(id, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// ValidateScope rejects empty scopes and path traversal.
func ValidateScope(scope string) error {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return fmt.Errorf("scope is required")
	}
	if strings.ContainsAny(scope, `/\`) || scope == "." || scope == ".." {
		return fmt.Errorf("invalid scope %q: must be a plain identifier", scope)
	}
	return nil
}

// ScopeDir resolves the directory for a scope.
func ScopeDir(basePath, scope string) (string, error) {
	if err := ValidateScope(scope); err != nil {
		return "", err
	}
	return filepath.Join(basePath, "scopes", strings.TrimSpace(scope)), nil
}
