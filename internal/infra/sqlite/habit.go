package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/habitnest/habitnest/internal/domain"
)

// ─── Habit Goals ────────────────────────────────────────────────────────────

// UpsertGoal saves a goal, replacing any existing goal for the same habit.
func (d *DB) UpsertGoal(ctx context.Context, g domain.HabitGoal) error {
	reminders, err := json.Marshal(g.ReminderTimes)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO habit_goals (user_id, habit, water_goal, cup_size, calories_goal, focus_goal,
		                          sleep_time, wakeup_time, reminder_times, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, habit) DO UPDATE SET
			water_goal = excluded.water_goal,
			cup_size = excluded.cup_size,
			calories_goal = excluded.calories_goal,
			focus_goal = excluded.focus_goal,
			sleep_time = excluded.sleep_time,
			wakeup_time = excluded.wakeup_time,
			reminder_times = excluded.reminder_times,
			updated_at = excluded.updated_at`,
		g.UserID, string(g.Habit), g.WaterGoal, g.CupSize, g.CaloriesGoal, g.FocusGoal,
		g.SleepTime, g.WakeupTime, string(reminders), g.UpdatedAt.Unix(),
	)
	if err != nil {
		return wrapErr("upsert goal", err)
	}
	return nil
}

const goalColumns = `user_id, habit, water_goal, cup_size, calories_goal, focus_goal,
	sleep_time, wakeup_time, reminder_times, updated_at`

// GetGoal returns the user's goal for a habit.
func (d *DB) GetGoal(ctx context.Context, userID string, h domain.HabitType) (domain.HabitGoal, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM habit_goals WHERE user_id = ? AND habit = ?`,
		userID, string(h),
	)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HabitGoal{}, domain.ErrGoalNotFound
	}
	if err != nil {
		return domain.HabitGoal{}, wrapErr("get goal", err)
	}
	return g, nil
}

// ListGoals returns every stored goal.
func (d *DB) ListGoals(ctx context.Context) ([]domain.HabitGoal, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM habit_goals ORDER BY user_id, habit`)
	if err != nil {
		return nil, wrapErr("list goals", err)
	}
	defer rows.Close()

	var goals []domain.HabitGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, wrapErr("list goals", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func scanGoal(s scanner) (domain.HabitGoal, error) {
	var g domain.HabitGoal
	var habit, reminders string
	var updated int64
	err := s.Scan(&g.UserID, &habit, &g.WaterGoal, &g.CupSize, &g.CaloriesGoal, &g.FocusGoal,
		&g.SleepTime, &g.WakeupTime, &reminders, &updated)
	if err != nil {
		return g, err
	}
	g.Habit = domain.HabitType(habit)
	g.UpdatedAt = unixTime(updated)
	if err := json.Unmarshal([]byte(reminders), &g.ReminderTimes); err != nil {
		return g, err
	}
	return g, nil
}

// ─── Habit Logs ─────────────────────────────────────────────────────────────

// ReplaceDayLogs swaps the user's logs for one habit and day.
func (d *DB) ReplaceDayLogs(ctx context.Context, userID string, h domain.HabitType, day domain.Date, logs []domain.HabitLog) error {
	return d.withTx(ctx, "replace day logs", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM habit_logs WHERE user_id = ? AND habit = ? AND log_date = ?`,
			userID, string(h), day.String(),
		); err != nil {
			return err
		}
		for _, l := range logs {
			if _, err := insertLog(ctx, tx, l, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateLogsIfMissing inserts logs whose day key is still free.
func (d *DB) CreateLogsIfMissing(ctx context.Context, logs []domain.HabitLog) (int, error) {
	created := 0
	err := d.withTx(ctx, "create logs", func(tx *sql.Tx) error {
		for _, l := range logs {
			n, err := insertLog(ctx, tx, l, true)
			if err != nil {
				return err
			}
			created += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func insertLog(ctx context.Context, q querier, l domain.HabitLog, ignoreExisting bool) (int64, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	dishes, err := json.Marshal(l.Dishes)
	if err != nil {
		return 0, err
	}
	verb := "INSERT"
	if ignoreExisting {
		verb = "INSERT OR IGNORE"
	}
	res, err := q.ExecContext(ctx,
		verb+` INTO habit_logs (id, user_id, habit, log_date, task, goal, cup_size, consumed,
		                        completed, dishes, scheduled_time, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, string(l.Habit), l.Date.String(), l.Task, l.Goal, l.CupSize, l.Consumed,
		l.Completed, string(dishes), l.ScheduledTime, l.UpdatedAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const logColumns = `id, user_id, habit, log_date, task, goal, cup_size, consumed,
	completed, dishes, scheduled_time, updated_at`

// ListLogs returns the user's logs for a habit with dates in [from, to].
func (d *DB) ListLogs(ctx context.Context, userID string, h domain.HabitType, from, to domain.Date) ([]domain.HabitLog, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM habit_logs
		 WHERE user_id = ? AND habit = ? AND log_date BETWEEN ? AND ?
		 ORDER BY log_date ASC, task ASC`,
		userID, string(h), from.String(), to.String(),
	)
	if err != nil {
		return nil, wrapErr("list logs", err)
	}
	defer rows.Close()

	var logs []domain.HabitLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, wrapErr("list logs", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UpdateLog applies fn to a log inside a transaction.
func (d *DB) UpdateLog(ctx context.Context, userID, id string, fn func(l *domain.HabitLog) error) (domain.HabitLog, error) {
	var out domain.HabitLog
	err := d.withTx(ctx, "update log", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+logColumns+` FROM habit_logs WHERE id = ? AND user_id = ?`, id, userID)
		l, err := scanLog(row)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrLogNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&l); err != nil {
			return err
		}
		dishes, err := json.Marshal(l.Dishes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE habit_logs SET consumed = ?, completed = ?, dishes = ?, updated_at = ? WHERE id = ?`,
			l.Consumed, l.Completed, string(dishes), l.UpdatedAt.Unix(), l.ID,
		); err != nil {
			return err
		}
		out = l
		return nil
	})
	return out, err
}

func scanLog(s scanner) (domain.HabitLog, error) {
	var l domain.HabitLog
	var habit, date, dishes string
	var updated int64
	err := s.Scan(&l.ID, &l.UserID, &habit, &date, &l.Task, &l.Goal, &l.CupSize, &l.Consumed,
		&l.Completed, &dishes, &l.ScheduledTime, &updated)
	if err != nil {
		return l, err
	}
	l.Habit = domain.HabitType(habit)
	if l.Date, err = parseDate(date); err != nil {
		return l, err
	}
	l.UpdatedAt = time.Unix(updated, 0).UTC()
	if err := json.Unmarshal([]byte(dishes), &l.Dishes); err != nil {
		return l, err
	}
	return l, nil
}
