// Package internal provides the App struct that wires the opspulse pipeline
// components together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opspulse/opspulse/internal/cli"
	"github.com/opspulse/opspulse/internal/config"
	"github.com/opspulse/opspulse/internal/pipeline"
	"github.com/opspulse/opspulse/internal/recommend"
	"github.com/opspulse/opspulse/internal/storage"
	"github.com/opspulse/opspulse/internal/storage/sqlite"
)

// App holds all service dependencies for the opspulse pipeline.
type App struct {
	BasePath string
	Config   *config.Config

	// Storage layer
	Events storage.EventStore
	States storage.StateStore
	RunLog storage.RunLog

	// Pipeline
	Runner *pipeline.Runner
}

// NewApp creates and wires all components. basePath is the root directory
// where all data is stored (typically the directory containing .pulseconfig).
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	loader := config.NewLoader(basePath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	app.Config = cfg

	// --- Storage layer ---
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		store, err := sqlite.Open(basePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite event store: %w", err)
		}
		app.Events = store
	default:
		app.Events = storage.NewJSONLEventStore(basePath)
	}
	app.States = storage.NewFileStateStore(basePath)
	app.RunLog = storage.NewJSONLRunLog(basePath)

	// --- Templates ---
	var templates recommend.TemplateGenerator
	if cfg.TemplateCommand != "" && !cfg.OfflineMode {
		templates = recommend.NewCommandGenerator(cfg.TemplateCommand)
	}

	// --- Pipeline ---
	app.Runner = pipeline.NewRunner(app.Events, app.States, app.RunLog, templates, cfg.SentimentAlpha)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Cfg = cfg
	cli.Runner = app.Runner
	cli.Events = app.Events
	cli.RunLog = app.RunLog

	return app, nil
}

// Close releases resources held by the App, such as the sqlite handle.
func (a *App) Close() error {
	if a.Events != nil {
		return a.Events.Close()
	}
	return nil
}

// ResolveBasePath determines the base path for the opspulse data directory.
// It checks the OPSPULSE_HOME env var, then walks up from the current
// directory looking for .pulseconfig, then falls back to the cwd.
func ResolveBasePath() string {
	if home := os.Getenv("OPSPULSE_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".pulseconfig")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}
