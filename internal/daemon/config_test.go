package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/habitnest/habitnest/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("HABITNEST_HOME", "/tmp/hn")
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8080)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Dir != "/tmp/hn" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Rewards.Timezone != "Asia/Ho_Chi_Minh" {
		t.Errorf("Rewards.Timezone = %q", cfg.Rewards.Timezone)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default", cfg.API.Port)
	}
}

func TestLoadConfigFile_TOMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[api]
port = 9000
cors_origins = ["https://app.habitnest.dev"]

[rewards]
timezone = "UTC"

[rollover]
interval = "1m"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HABITNEST_API_PORT", "9100")
	t.Setenv("HABITNEST_LOG_LEVEL", "debug")

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want env override 9100", cfg.API.Port)
	}
	if len(cfg.API.CORSOrigins) != 1 || cfg.API.CORSOrigins[0] != "https://app.habitnest.dev" {
		t.Errorf("CORSOrigins = %v", cfg.API.CORSOrigins)
	}
	if cfg.Rewards.Timezone != "UTC" || cfg.Rollover.Interval != "1m" {
		t.Errorf("rewards/rollover = %+v %+v", cfg.Rewards, cfg.Rollover)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	// untouched sections keep defaults
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q", cfg.Store.Backend)
	}
}

func TestLoadConfigFile_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[api\nport = "), 0o600)
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("LoadConfigFile() with bad TOML should fail")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }},
		{"postgres without url", func(c *Config) { c.Store.Backend = "postgres" }},
		{"firestore without project", func(c *Config) { c.Store.Backend = "firestore" }},
		{"bad timezone", func(c *Config) { c.Rewards.Timezone = "Mars/Olympus" }},
		{"bad interval", func(c *Config) { c.Rollover.Interval = "soon" }},
		{"bad port", func(c *Config) { c.API.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Validate() = %v, want ErrValidation", err)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"", time.Hour},
		{"bogus", time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseDuration(tt.input, time.Hour); got != tt.want {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ─── Daemon ─────────────────────────────────────────────────────────────────

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HABITNEST_HOME", dir)
	cfg := DefaultConfig()
	cfg.Rewards.Timezone = "UTC"
	cfg.Logging.File = filepath.Join(dir, "habitnest.log")
	return cfg
}

func TestNewWithConfig_SeedsAndWires(t *testing.T) {
	d, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	quests, err := d.Store.ListQuests(context.Background(), true)
	if err != nil {
		t.Fatalf("ListQuests: %v", err)
	}
	if len(quests) != len(domain.DefaultQuests) {
		t.Errorf("seeded quests = %d, want %d", len(quests), len(domain.DefaultQuests))
	}
	if d.Server == nil || d.Health == nil || d.Habits == nil {
		t.Error("daemon services not wired")
	}
}

func TestDaemon_TodayUsesLocation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rewards.Timezone = "Asia/Ho_Chi_Minh"
	d, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()

	// 18:30 UTC is 01:30 the next day in UTC+7
	d.now = func() time.Time { return time.Date(2024, 5, 8, 18, 30, 0, 0, time.UTC) }
	if got := d.Today().String(); got != "2024-05-09" {
		t.Errorf("Today() = %s, want 2024-05-09", got)
	}
}

func TestDaemon_RolloverOnce(t *testing.T) {
	d, err := NewWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("NewWithConfig() error: %v", err)
	}
	defer d.Close()
	ctx := context.Background()

	d.now = func() time.Time { return time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC) }
	if _, _, err := d.Habits.SetGoal(ctx, domain.HabitGoal{UserID: "u1", Habit: domain.HabitFocus, FocusGoal: 30}, d.Today()); err != nil {
		t.Fatalf("SetGoal: %v", err)
	}

	d.now = func() time.Time { return time.Date(2024, 5, 9, 12, 0, 0, 0, time.UTC) }
	n, err := d.RolloverOnce(ctx)
	if err != nil {
		t.Fatalf("RolloverOnce() error: %v", err)
	}
	if n != 1 {
		t.Errorf("created = %d, want 1", n)
	}
}
