// Package daemon manages the HabitNest daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // time zones without system zoneinfo

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/habitnest/habitnest/internal/app/validation"
	"github.com/habitnest/habitnest/internal/domain"
)

// Config holds all daemon configuration.
// Precedence: defaults, then config.toml, then HABITNEST_* environment variables.
type Config struct {
	API       APIConfig       `toml:"api"`
	Store     StoreConfig     `toml:"store"`
	Rewards   RewardsConfig   `toml:"rewards"`
	Rollover  RolloverConfig  `toml:"rollover"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string   `toml:"host" env:"HABITNEST_API_HOST"`
	Port           int      `toml:"port" env:"HABITNEST_API_PORT" validate:"gt=0,lte=65535"`
	CORSOrigins    []string `toml:"cors_origins" env:"HABITNEST_API_CORS_ORIGINS" envSeparator:","`
	RequestTimeout string   `toml:"request_timeout" env:"HABITNEST_API_REQUEST_TIMEOUT"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend          string `toml:"backend" env:"HABITNEST_STORE_BACKEND" validate:"oneof=sqlite postgres firestore"`
	Dir              string `toml:"dir" env:"HABITNEST_STORE_DIR"`
	PostgresURL      string `toml:"postgres_url" env:"HABITNEST_POSTGRES_URL"`
	FirestoreProject string `toml:"firestore_project" env:"HABITNEST_FIRESTORE_PROJECT"`
}

// RewardsConfig controls the reward engine.
type RewardsConfig struct {
	// Timezone defines the business day boundary.
	Timezone    string `toml:"timezone" env:"HABITNEST_TIMEZONE"`
	SeedDefault bool   `toml:"seed_default_quests" env:"HABITNEST_SEED_DEFAULT_QUESTS"`
}

// RolloverConfig controls the daily log rollover loop.
type RolloverConfig struct {
	Enabled  bool   `toml:"enabled" env:"HABITNEST_ROLLOVER_ENABLED"`
	Interval string `toml:"interval" env:"HABITNEST_ROLLOVER_INTERVAL"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level      string `toml:"level" env:"HABITNEST_LOG_LEVEL"`
	File       string `toml:"file" env:"HABITNEST_LOG_FILE"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxFiles   int    `toml:"max_files"`
	MaxAgeDays int    `toml:"max_age_days"`
	JSON       bool   `toml:"json" env:"HABITNEST_LOG_JSON"`
	// Stderr mirrors the file sink to stderr. Set by `serve`.
	Stderr bool `toml:"stderr" env:"HABITNEST_LOG_STDERR"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus" env:"HABITNEST_PROMETHEUS"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := habitnestHome()
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			CORSOrigins:    []string{"*"},
			RequestTimeout: "30s",
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Dir:     homeDir,
		},
		Rewards: RewardsConfig{
			Timezone:    "Asia/Ho_Chi_Minh",
			SeedDefault: true,
		},
		Rollover: RolloverConfig{
			Enabled:  true,
			Interval: "5m",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(homeDir, "habitnest.log"),
			MaxSizeMB:  50,
			MaxFiles:   5,
			MaxAgeDays: 30,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from $HABITNEST_HOME/config.toml, falling back to
// defaults, and applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(habitnestHome(), "config.toml"))
}

// LoadConfigFile is LoadConfig for an explicit path.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	errs := []error{validation.Struct(c)}
	switch c.Store.Backend {
	case "postgres":
		errs = append(errs, validation.Var("store.postgres_url", c.Store.PostgresURL, "required"))
	case "firestore":
		errs = append(errs, validation.Var("store.firestore_project", c.Store.FirestoreProject, "required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	for _, d := range []struct{ name, value string }{
		{"api.request_timeout", c.API.RequestTimeout},
		{"rollover.interval", c.Rollover.Interval},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, domain.NewValidationError(d.name, "must be a duration like 30s or 5m"))
		}
	}
	return validation.Join(errs...)
}

// Location resolves the rewards time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Rewards.Timezone)
	if err != nil {
		return nil, domain.NewValidationError("rewards.timezone", "unknown time zone "+c.Rewards.Timezone)
	}
	return loc, nil
}

// SaveConfig writes the config to $HABITNEST_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(habitnestHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// habitnestHome returns the HabitNest data directory.
func habitnestHome() string {
	if dir := os.Getenv("HABITNEST_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".habitnest")
}

// Home is exported for use by other packages.
func Home() string {
	return habitnestHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
