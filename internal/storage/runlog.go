package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunRecord summarizes one pipeline run for the workspace run log.
type RunRecord struct {
	Time            time.Time `json:"time"`
	Scope           string    `json:"scope"`
	ProcessedEvents int       `json:"processed_events"`
	Recommendations int       `json:"recommendations"`
	ProjectHealth   float64   `json:"project_health"`
	Risk            float64   `json:"risk"`
}

// RunLog records pipeline run outcomes as append-only JSONL.
type RunLog interface {
	Append(record RunRecord) error
	// Read returns records for a scope, newest last. An empty scope returns
	// everything.
	Read(scope string) ([]RunRecord, error)
}

type jsonlRunLog struct {
	path string
	mu   sync.Mutex
}

// NewJSONLRunLog creates a RunLog backed by runs.jsonl under the given base
// directory.
func NewJSONLRunLog(basePath string) RunLog {
	return &jsonlRunLog{path: filepath.Join(basePath, "runs.jsonl")}
}

func (l *jsonlRunLog) Append(record RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating run log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshalling run record: %w", err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing run record: %w", err)
	}
	return nil
}

func (l *jsonlRunLog) Read(scope string) ([]RunRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run log for reading: %w", err)
	}
	defer f.Close()

	var records []RunRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record RunRecord
		if err := json.Unmarshal(line, &record); err != nil {
			continue // skip malformed lines
		}
		if scope == "" || record.Scope == scope {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning run log: %w", err)
	}
	return records, nil
}
