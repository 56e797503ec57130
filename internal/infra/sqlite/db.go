// Package sqlite provides SQLite-based persistent storage for HabitNest.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	msqlite "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/habitnest/habitnest/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

var _ domain.Store = (*DB)(nil)

// Open creates or opens the SQLite database at dir/habitnest.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "habitnest.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// One connection serializes every read-modify-write transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Habits
		`CREATE TABLE IF NOT EXISTS habit_goals (
			user_id        TEXT NOT NULL,
			habit          TEXT NOT NULL,
			water_goal     REAL NOT NULL DEFAULT 0,
			cup_size       REAL NOT NULL DEFAULT 0,
			calories_goal  REAL NOT NULL DEFAULT 0,
			focus_goal     REAL NOT NULL DEFAULT 0,
			sleep_time     TEXT NOT NULL DEFAULT '',
			wakeup_time    TEXT NOT NULL DEFAULT '',
			reminder_times TEXT NOT NULL DEFAULT '[]',
			updated_at     INTEGER NOT NULL,
			PRIMARY KEY (user_id, habit)
		)`,
		`CREATE TABLE IF NOT EXISTS habit_logs (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			habit          TEXT NOT NULL,
			log_date       TEXT NOT NULL,
			task           TEXT NOT NULL DEFAULT '',
			goal           REAL NOT NULL DEFAULT 0,
			cup_size       REAL NOT NULL DEFAULT 0,
			consumed       REAL NOT NULL DEFAULT 0,
			completed      BOOLEAN NOT NULL DEFAULT 0,
			dishes         TEXT NOT NULL DEFAULT '[]',
			scheduled_time TEXT NOT NULL DEFAULT '',
			updated_at     INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_habit_logs_day ON habit_logs(user_id, habit, log_date, task)`,

		// Rewards
		`CREATE TABLE IF NOT EXISTS reward_ledgers (
			user_id           TEXT PRIMARY KEY,
			coins             INTEGER NOT NULL DEFAULT 0 CHECK (coins >= 0),
			diamonds          INTEGER NOT NULL DEFAULT 0 CHECK (diamonds >= 0),
			streak            INTEGER NOT NULL DEFAULT 0 CHECK (streak >= 0),
			daily_checkin     INTEGER NOT NULL DEFAULT 0 CHECK (daily_checkin BETWEEN 0 AND 6),
			last_checkin_date TEXT NOT NULL,
			last_streak_date  TEXT NOT NULL,
			version           INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS reward_grants (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			source     TEXT NOT NULL,
			ref        TEXT NOT NULL,
			coins      INTEGER NOT NULL DEFAULT 0,
			diamonds   INTEGER NOT NULL DEFAULT 0,
			granted_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reward_grants_user ON reward_grants(user_id, granted_at)`,

		// Quests
		`CREATE TABLE IF NOT EXISTS quests (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			type            TEXT NOT NULL,
			trigger_type    TEXT NOT NULL,
			target_progress INTEGER NOT NULL CHECK (target_progress > 0),
			reward_type     TEXT NOT NULL,
			reward_amount   INTEGER NOT NULL CHECK (reward_amount > 0),
			is_active       BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS user_quest_progress (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			quest_id          TEXT NOT NULL REFERENCES quests(id),
			period_start_date TEXT NOT NULL,
			current_progress  INTEGER NOT NULL DEFAULT 0 CHECK (current_progress >= 0),
			claimed_at        INTEGER,
			updated_at        INTEGER NOT NULL,
			UNIQUE (user_id, quest_id, period_start_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quest_progress_user ON user_quest_progress(user_id, period_start_date)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
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

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (d *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
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

// wrapErr annotates err with op, classifying lock contention and lost
// connections as domain.ErrTransientStore.
func wrapErr(op string, err error) error {
	if isTransient(err) && !errors.Is(err, domain.ErrTransientStore) {
		return domain.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded)
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func parseDate(s string) (domain.Date, error) {
	d, err := domain.ParseDate(s)
	if err != nil {
		return domain.Date{}, fmt.Errorf("stored date: %w", err)
	}
	return d, nil
}
