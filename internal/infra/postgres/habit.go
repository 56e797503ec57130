package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	pq "github.com/lib/pq"

	"github.com/habitnest/habitnest/internal/domain"
)

// ─── Habit Goals ────────────────────────────────────────────────────────────

func (s *Store) UpsertGoal(ctx context.Context, g domain.HabitGoal) error {
	reminders := g.ReminderTimes
	if reminders == nil {
		reminders = []string{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO habit_goals (user_id, habit, water_goal, cup_size, calories_goal, focus_goal,
		                          sleep_time, wakeup_time, reminder_times, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id, habit) DO UPDATE SET
			water_goal = EXCLUDED.water_goal,
			cup_size = EXCLUDED.cup_size,
			calories_goal = EXCLUDED.calories_goal,
			focus_goal = EXCLUDED.focus_goal,
			sleep_time = EXCLUDED.sleep_time,
			wakeup_time = EXCLUDED.wakeup_time,
			reminder_times = EXCLUDED.reminder_times,
			updated_at = EXCLUDED.updated_at`,
		g.UserID, string(g.Habit), g.WaterGoal, g.CupSize, g.CaloriesGoal, g.FocusGoal,
		g.SleepTime, g.WakeupTime, pq.Array(reminders), g.UpdatedAt,
	)
	if err != nil {
		return wrapErr("upsert goal", err)
	}
	return nil
}

const goalColumns = `user_id, habit, water_goal, cup_size, calories_goal, focus_goal,
	sleep_time, wakeup_time, reminder_times, updated_at`

func (s *Store) GetGoal(ctx context.Context, userID string, h domain.HabitType) (domain.HabitGoal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM habit_goals WHERE user_id = $1 AND habit = $2`,
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

func (s *Store) ListGoals(ctx context.Context) ([]domain.HabitGoal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+goalColumns+` FROM habit_goals ORDER BY user_id, habit`)
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
	var habit string
	err := s.Scan(&g.UserID, &habit, &g.WaterGoal, &g.CupSize, &g.CaloriesGoal, &g.FocusGoal,
		&g.SleepTime, &g.WakeupTime, pq.Array(&g.ReminderTimes), &g.UpdatedAt)
	g.Habit = domain.HabitType(habit)
	return g, err
}

// ─── Habit Logs ─────────────────────────────────────────────────────────────

func (s *Store) ReplaceDayLogs(ctx context.Context, userID string, h domain.HabitType, day domain.Date, logs []domain.HabitLog) error {
	return s.withTx(ctx, "replace day logs", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM habit_logs WHERE user_id = $1 AND habit = $2 AND log_date = $3`,
			userID, string(h), day.Time(),
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

func (s *Store) CreateLogsIfMissing(ctx context.Context, logs []domain.HabitLog) (int, error) {
	created := 0
	err := s.withTx(ctx, "create logs", func(tx *sql.Tx) error {
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
	dishes, err := json.Marshal(nonNilDishes(l.Dishes))
	if err != nil {
		return 0, err
	}
	query := `INSERT INTO habit_logs (id, user_id, habit, log_date, task, goal, cup_size, consumed,
	                                  completed, dishes, scheduled_time, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if ignoreExisting {
		query += ` ON CONFLICT (user_id, habit, log_date, task) DO NOTHING`
	}
	res, err := q.ExecContext(ctx, query,
		l.ID, l.UserID, string(l.Habit), l.Date.Time(), l.Task, l.Goal, l.CupSize, l.Consumed,
		l.Completed, string(dishes), l.ScheduledTime, l.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const logColumns = `id, user_id, habit, log_date, task, goal, cup_size, consumed,
	completed, dishes, scheduled_time, updated_at`

func (s *Store) ListLogs(ctx context.Context, userID string, h domain.HabitType, from, to domain.Date) ([]domain.HabitLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM habit_logs
		 WHERE user_id = $1 AND habit = $2 AND log_date BETWEEN $3 AND $4
		 ORDER BY log_date ASC, task ASC`,
		userID, string(h), from.Time(), to.Time(),
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

func (s *Store) UpdateLog(ctx context.Context, userID, id string, fn func(l *domain.HabitLog) error) (domain.HabitLog, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.HabitLog{}, domain.ErrLogNotFound
	}
	var out domain.HabitLog
	err := s.withTx(ctx, "update log", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+logColumns+` FROM habit_logs WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID)
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
		dishes, err := json.Marshal(nonNilDishes(l.Dishes))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE habit_logs SET consumed = $1, completed = $2, dishes = $3, updated_at = $4 WHERE id = $5`,
			l.Consumed, l.Completed, string(dishes), l.UpdatedAt, l.ID,
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
	var habit string
	var date time.Time
	var dishes []byte
	err := s.Scan(&l.ID, &l.UserID, &habit, &date, &l.Task, &l.Goal, &l.CupSize, &l.Consumed,
		&l.Completed, &dishes, &l.ScheduledTime, &l.UpdatedAt)
	if err != nil {
		return l, err
	}
	l.Habit = domain.HabitType(habit)
	l.Date = dateOf(date)
	if err := json.Unmarshal(dishes, &l.Dishes); err != nil {
		return l, err
	}
	return l, nil
}

func nonNilDishes(d []domain.Dish) []domain.Dish {
	if d == nil {
		return []domain.Dish{}
	}
	return d
}
