// Package config loads workspace configuration for the opspulse pipeline
// from the .pulseconfig file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Storage backend names accepted by storage.backend.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Config holds the merged workspace settings. Precedence:
// .pulseconfig > defaults.
type Config struct {
	// StorageBackend selects the event store implementation: jsonl or sqlite.
	StorageBackend string
	// DefaultScope is used by commands when --scope is not given.
	DefaultScope string
	// SentimentAlpha is the smoothing factor for the sentiment moving average.
	SentimentAlpha float64
	// TemplateCommand, when set, names an external command used to render
	// recommendation messages. Empty means the built-in templates are used.
	TemplateCommand string
	// OfflineMode disables any external template generator.
	OfflineMode bool
}

// Loader reads and validates workspace configuration.
type Loader interface {
	Load() (*Config, error)
	Validate(cfg *Config) error
}

// viperLoader implements Loader using Viper for reading the YAML file.
type viperLoader struct {
	// basePath is the directory where .pulseconfig resides.
	basePath string
}

// NewLoader creates a Loader that reads .pulseconfig from basePath.
func NewLoader(basePath string) Loader {
	return &viperLoader{basePath: basePath}
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		StorageBackend: BackendJSONL,
		DefaultScope:   "",
		SentimentAlpha: 0.35,
		OfflineMode:    false,
	}
}

// Load reads the .pulseconfig file from the base path. If the file does not
// exist, defaults are returned.
func (l *viperLoader) Load() (*Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigName(".pulseconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(l.basePath)

	// Set Viper defaults so missing keys fall back gracefully.
	v.SetDefault("storage.backend", cfg.StorageBackend)
	v.SetDefault("defaults.scope", cfg.DefaultScope)
	v.SetDefault("sentiment.alpha", cfg.SentimentAlpha)
	v.SetDefault("templates.command", cfg.TemplateCommand)
	v.SetDefault("offline_mode", cfg.OfflineMode)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading .pulseconfig: %w", err)
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(v.GetString("storage.backend")))
	cfg.DefaultScope = v.GetString("defaults.scope")
	cfg.SentimentAlpha = v.GetFloat64("sentiment.alpha")
	cfg.TemplateCommand = v.GetString("templates.command")
	cfg.OfflineMode = v.GetBool("offline_mode")

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values and returns a clear
// error message identifying the problem.
func (l *viperLoader) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	switch cfg.StorageBackend {
	case BackendJSONL, BackendSQLite:
	default:
		errs = append(errs, fmt.Sprintf(
			"storage.backend %q is invalid, must be one of: jsonl, sqlite",
			cfg.StorageBackend,
		))
	}

	if cfg.SentimentAlpha < 0.05 || cfg.SentimentAlpha > 0.9 {
		errs = append(errs, fmt.Sprintf(
			"sentiment.alpha %.2f is invalid, must be between 0.05 and 0.9",
			cfg.SentimentAlpha,
		))
	}

	if strings.ContainsAny(cfg.DefaultScope, `/\`) {
		errs = append(errs, fmt.Sprintf(
			"defaults.scope %q is invalid, must be a plain identifier",
			cfg.DefaultScope,
		))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
