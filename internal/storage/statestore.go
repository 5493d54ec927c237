package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opspulse/opspulse/pkg/models"
	"gopkg.in/yaml.v3"
)

// StateStore round-trips the per-scope SignalState. The stored form must be
// lossless: the engine's cursor, evidence buckets, and rolling lists all
// survive a Load/Save cycle.
type StateStore interface {
	// Load returns ErrScopeNotFound when no state has been saved yet.
	Load(scope string) (*models.SignalState, error)
	Save(scope string, state *models.SignalState) error
}

// fileStateStore keeps one state.yaml per scope under scopes/<scope>/.
type fileStateStore struct {
	basePath string
}

// NewFileStateStore creates a StateStore backed by YAML files under the
// given base directory.
func NewFileStateStore(basePath string) StateStore {
	return &fileStateStore{basePath: basePath}
}

func (s *fileStateStore) statePath(scope string) (string, error) {
	dir, err := ScopeDir(s.basePath, scope)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.yaml"), nil
}

func (s *fileStateStore) Load(scope string) (*models.SignalState, error) {
	path, err := s.statePath(scope)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrScopeNotFound
		}
		return nil, fmt.Errorf("reading state for scope %s: %w", scope, err)
	}

	var state models.SignalState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing state for scope %s: %w", scope, err)
	}
	return &state, nil
}

func (s *fileStateStore) Save(scope string, state *models.SignalState) error {
	path, err := s.statePath(scope)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("state is nil")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating scope directory: %w", err)
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state for scope %s: %w", scope, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing state for scope %s: %w", scope, err)
	}
	return nil
}
