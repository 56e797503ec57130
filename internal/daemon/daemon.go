package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/habitnest/habitnest/internal/api"
	"github.com/habitnest/habitnest/internal/app/credit"
	"github.com/habitnest/habitnest/internal/app/engagement"
	"github.com/habitnest/habitnest/internal/app/habit"
	"github.com/habitnest/habitnest/internal/domain"
	"github.com/habitnest/habitnest/internal/health"
	"github.com/habitnest/habitnest/internal/infra/firestore"
	_ "github.com/habitnest/habitnest/internal/infra/metrics" // Register Prometheus metrics
	"github.com/habitnest/habitnest/internal/infra/postgres"
	"github.com/habitnest/habitnest/internal/infra/scheduler"
	"github.com/habitnest/habitnest/internal/infra/sqlite"
	"github.com/habitnest/habitnest/internal/logger"
)

// Daemon is the core HabitNest runtime. It wires together all services.
type Daemon struct {
	Config   Config
	Store    domain.Store
	Location *time.Location
	Server   *api.Server
	Health   *health.Checker

	Habits   *habit.Service
	Streak   *engagement.StreakService
	Checkins *engagement.CheckinService
	Quests   *engagement.QuestService
	Credit   *credit.Service

	now    func() time.Time
	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxFiles:   cfg.Logging.MaxFiles,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Stderr:     cfg.Logging.Stderr,
		JSON:       cfg.Logging.JSON,
	}); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		Config:   cfg,
		Store:    store,
		Location: loc,
		now:      time.Now,
	}

	// Services
	d.Quests = engagement.NewQuestService(store)
	d.Streak = engagement.NewStreakService(store)
	d.Checkins = engagement.NewCheckinService(store, d.Quests)
	d.Habits = habit.NewService(store, d.Streak, d.Quests)
	d.Credit = credit.NewService(store)
	d.Quests.SetActivity(d.Habits, d.Checkins)

	if cfg.Rewards.SeedDefault {
		n, err := d.Quests.SeedDefaults(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("seed quests: %w", err)
		}
		if n > 0 {
			logger.Info("seeded default quests", "count", n)
		}
	}

	// Health checker
	checks := []health.Check{health.StoreCheck("store", store)}
	if cfg.Store.Backend == "sqlite" {
		checks = append(checks, health.DirCheck("data_dir", cfg.Store.Dir))
	}
	d.Health = health.NewChecker(health.DefaultInterval, checks...)

	// API server
	srv := api.NewServer(api.Services{
		Habits:   d.Habits,
		Checkins: d.Checkins,
		Quests:   d.Quests,
		Credit:   d.Credit,
	}, loc)
	srv.SetHealth(d.Health)
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	srv.SetTimeout(parseDuration(cfg.API.RequestTimeout, 30*time.Second))
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// openStore opens the configured backend.
func openStore(ctx context.Context, cfg StoreConfig) (domain.Store, error) {
	switch cfg.Backend {
	case "postgres":
		s, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case "firestore":
		s, err := firestore.Open(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		return s, nil
	default:
		dir := cfg.Dir
		if dir == "" {
			dir = habitnestHome()
		}
		db, err := sqlite.Open(dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	}
}

// Today is the current business day in the configured time zone.
func (d *Daemon) Today() domain.Date {
	return domain.Today(d.now(), d.Location)
}

// Now is the daemon clock.
func (d *Daemon) Now() time.Time {
	return d.now()
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	if d.Config.Rollover.Enabled {
		go d.runRollover(ctx, parseDuration(d.Config.Rollover.Interval, 5*time.Minute))
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			logger.Info("shutting down")
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("HabitNest serving on http://%s\n", addr)
	fmt.Printf("  Store:    %s\n", d.Config.Store.Backend)
	fmt.Printf("  Timezone: %s\n", d.Location)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics:  http://%s/metrics\n", addr)
	}
	logger.Info("serving", "addr", addr, "store", d.Config.Store.Backend)

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RolloverOnce creates today's logs for every saved goal.
func (d *Daemon) RolloverOnce(ctx context.Context) (int, error) {
	return d.Habits.Rollover(ctx, d.Today())
}

// runRollover creates each new day's logs shortly after the day starts.
func (d *Daemon) runRollover(ctx context.Context, interval time.Duration) {
	run := func() {
		err := scheduler.Retry(ctx, scheduler.DefaultRetryConfig(), "rollover", func(ctx context.Context) error {
			_, err := d.RolloverOnce(ctx)
			return err
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn("rollover failed", "err", err)
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
}
