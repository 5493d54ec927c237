package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/opspulse/opspulse/internal/config"
	"github.com/opspulse/opspulse/internal/pipeline"
	"github.com/opspulse/opspulse/internal/storage"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath string
	Cfg      *config.Config
	Runner   *pipeline.Runner
	Events   storage.EventStore
	RunLog   storage.RunLog
)

// resolveScope applies the configured default when --scope is not given.
func resolveScope(scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" && Cfg != nil {
		scope = Cfg.DefaultScope
	}
	if scope == "" {
		return "", fmt.Errorf("no scope given and no defaults.scope configured (use --scope)")
	}
	return scope, nil
}

// resolveNow parses an optional evaluation time, defaulting to the current
// UTC time. Pinning --at makes runs reproducible.
func resolveNow(at string) (time.Time, error) {
	at = strings.TrimSpace(at)
	if at == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing --at (want RFC3339): %w", err)
	}
	return t.UTC(), nil
}
