// Package postgres is the PostgreSQL storage backend. Claim transactions
// take row locks with SELECT ... FOR UPDATE so that concurrent servers
// grant each reward at most once.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/habitnest/habitnest/internal/domain"
)

// Store is a domain.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ domain.Store = (*Store)(nil)

// Open connects to connStr, verifies it and applies migrations.
func Open(ctx context.Context, connStr string) (*Store, error) {
	if strings.TrimSpace(connStr) == "" {
		return nil, errors.New("postgres: connection string is empty")
	}
	if _, err := pq.NewConnector(connStr); err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") {
			return nil, fmt.Errorf("connect postgres: %w (hint: add sslmode=disable)", err)
		}
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS habit_goals (
			user_id        TEXT NOT NULL,
			habit          TEXT NOT NULL,
			water_goal     DOUBLE PRECISION NOT NULL DEFAULT 0,
			cup_size       DOUBLE PRECISION NOT NULL DEFAULT 0,
			calories_goal  DOUBLE PRECISION NOT NULL DEFAULT 0,
			focus_goal     DOUBLE PRECISION NOT NULL DEFAULT 0,
			sleep_time     TEXT NOT NULL DEFAULT '',
			wakeup_time    TEXT NOT NULL DEFAULT '',
			reminder_times TEXT[] NOT NULL DEFAULT '{}',
			updated_at     TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, habit)
		)`,
		`CREATE TABLE IF NOT EXISTS habit_logs (
			id             UUID PRIMARY KEY,
			user_id        TEXT NOT NULL,
			habit          TEXT NOT NULL,
			log_date       DATE NOT NULL,
			task           TEXT NOT NULL DEFAULT '',
			goal           DOUBLE PRECISION NOT NULL DEFAULT 0,
			cup_size       DOUBLE PRECISION NOT NULL DEFAULT 0,
			consumed       DOUBLE PRECISION NOT NULL DEFAULT 0,
			completed      BOOLEAN NOT NULL DEFAULT FALSE,
			dishes         JSONB NOT NULL DEFAULT '[]',
			scheduled_time TEXT NOT NULL DEFAULT '',
			updated_at     TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, habit, log_date, task)
		)`,
		`CREATE TABLE IF NOT EXISTS reward_ledgers (
			user_id           TEXT PRIMARY KEY,
			coins             BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
			diamonds          BIGINT NOT NULL DEFAULT 0 CHECK (diamonds >= 0),
			streak            INTEGER NOT NULL DEFAULT 0 CHECK (streak >= 0),
			daily_checkin     INTEGER NOT NULL DEFAULT 0 CHECK (daily_checkin BETWEEN 0 AND 6),
			last_checkin_date DATE NOT NULL,
			last_streak_date  DATE NOT NULL,
			version           BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS reward_grants (
			id         UUID PRIMARY KEY,
			user_id    TEXT NOT NULL,
			source     TEXT NOT NULL,
			ref        TEXT NOT NULL,
			coins      BIGINT NOT NULL DEFAULT 0,
			diamonds   BIGINT NOT NULL DEFAULT 0,
			granted_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reward_grants_user ON reward_grants(user_id, granted_at)`,
		`CREATE TABLE IF NOT EXISTS quests (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			type            TEXT NOT NULL,
			trigger_type    TEXT NOT NULL,
			target_progress INTEGER NOT NULL CHECK (target_progress > 0),
			reward_type     TEXT NOT NULL,
			reward_amount   BIGINT NOT NULL CHECK (reward_amount > 0),
			is_active       BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS user_quest_progress (
			id                UUID PRIMARY KEY,
			user_id           TEXT NOT NULL,
			quest_id          TEXT NOT NULL REFERENCES quests(id),
			period_start_date DATE NOT NULL,
			current_progress  INTEGER NOT NULL DEFAULT 0 CHECK (current_progress >= 0),
			claimed_at        TIMESTAMPTZ,
			updated_at        TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, quest_id, period_start_date)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("exec migration: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return wrapErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

// Serialization failures, deadlocks and lock timeouts are safe to retry.
var transientCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"53300": true, // too_many_connections
}

func wrapErr(op string, err error) error {
	if errors.Is(err, domain.ErrTransientStore) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && transientCodes[pqErr.Code] {
		return domain.Transient(op, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func dateOf(t time.Time) domain.Date {
	return domain.DateOf(t.UTC())
}
