// Package habit manages habit goals and the daily logs they produce.
//
// A goal is replace-on-save: saving it discards today's logs for that habit
// and creates fresh ones from the new targets. Logs accept updates only on
// their own day. Every successful update touches the activity streak and
// feeds the day's totals to quest tracking; both are best-effort.
package habit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/habitnest/habitnest/internal/app/validation"
	"github.com/habitnest/habitnest/internal/domain"
	"github.com/habitnest/habitnest/internal/infra/metrics"
	"github.com/habitnest/habitnest/internal/infra/scheduler"
	"github.com/habitnest/habitnest/internal/logger"
)

const timeLayout = "15:04"

// MaxFocusMinutes caps a single focus update at one day.
const MaxFocusMinutes = 24 * 60

// StreakToucher records activity for the streak.
type StreakToucher interface {
	Touch(ctx context.Context, userID string, today domain.Date) error
}

// ProgressObserver receives the day's totals for quest tracking.
type ProgressObserver interface {
	Observe(ctx context.Context, userID string, trigger domain.TriggerType, value int, today domain.Date) error
}

// Service manages goals and logs.
type Service struct {
	store  domain.HabitStore
	streak StreakToucher
	quests ProgressObserver
	now    func() time.Time
}

// NewService creates a habit service. streak and quests may be nil.
func NewService(store domain.HabitStore, streak StreakToucher, quests ProgressObserver) *Service {
	return &Service{store: store, streak: streak, quests: quests, now: time.Now}
}

// ─── Goals ──────────────────────────────────────────────────────────────────

// SetGoal validates and saves g, then recreates today's logs for its habit.
func (s *Service) SetGoal(ctx context.Context, g domain.HabitGoal, today domain.Date) (domain.HabitGoal, []domain.HabitLog, error) {
	if err := ValidateGoal(g); err != nil {
		return domain.HabitGoal{}, nil, err
	}

	now := s.now().UTC()
	g.UpdatedAt = now
	if err := s.store.UpsertGoal(ctx, g); err != nil {
		return domain.HabitGoal{}, nil, fmt.Errorf("save goal: %w", err)
	}

	logs := domain.NewDayLogs(g, today, now)
	if err := s.store.ReplaceDayLogs(ctx, g.UserID, g.Habit, today, logs); err != nil {
		return domain.HabitGoal{}, nil, fmt.Errorf("reset today's logs: %w", err)
	}
	logs, err := s.store.ListLogs(ctx, g.UserID, g.Habit, today, today)
	if err != nil {
		return domain.HabitGoal{}, nil, fmt.Errorf("list logs: %w", err)
	}

	logger.Info("goal saved", "user", g.UserID, "habit", g.Habit)
	return g, logs, nil
}

// Goal returns the user's goal for h.
func (s *Service) Goal(ctx context.Context, userID string, h domain.HabitType) (domain.HabitGoal, error) {
	return s.store.GetGoal(ctx, userID, h)
}

// ValidateGoal checks the fields that apply to g.Habit.
func ValidateGoal(g domain.HabitGoal) error {
	errs := []error{validation.Var("user_id", g.UserID, "required")}
	switch g.Habit {
	case domain.HabitHydrate:
		errs = append(errs,
			validation.Var("water_goal", g.WaterGoal, "gt=0"),
			validation.Var("cup_size", g.CupSize, "gt=0"),
		)
	case domain.HabitDiet:
		errs = append(errs, validation.Var("calories_goal", g.CaloriesGoal, "gt=0"))
	case domain.HabitFocus:
		errs = append(errs, validation.Var("focus_goal", g.FocusGoal, "gt=0"))
	case domain.HabitSleep:
		sleepErr := validation.Var("sleep_time", g.SleepTime, "required,datetime="+timeLayout)
		wakeErr := validation.Var("wakeup_time", g.WakeupTime, "required,datetime="+timeLayout)
		errs = append(errs, sleepErr, wakeErr)
		if sleepErr == nil && wakeErr == nil {
			st, _ := time.Parse(timeLayout, g.SleepTime)
			wt, _ := time.Parse(timeLayout, g.WakeupTime)
			if !st.Before(wt) {
				errs = append(errs, domain.NewValidationError("sleep_time", "must be before wakeup_time"))
			}
		}
	default:
		_, err := domain.ParseHabitType(string(g.Habit))
		errs = append(errs, err)
	}
	for i, r := range g.ReminderTimes {
		errs = append(errs, validation.Var("reminder_times["+strconv.Itoa(i)+"]", r, "datetime="+timeLayout))
	}
	return validation.Join(errs...)
}

// ─── Logs ───────────────────────────────────────────────────────────────────

// TodayLogs returns today's logs for h, creating them from the saved goal
// if the day has not been rolled over yet. ErrLogNotFound without a goal.
func (s *Service) TodayLogs(ctx context.Context, userID string, h domain.HabitType, today domain.Date) ([]domain.HabitLog, error) {
	logs, err := s.store.ListLogs(ctx, userID, h, today, today)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	if len(logs) > 0 {
		return logs, nil
	}

	g, err := s.store.GetGoal(ctx, userID, h)
	if errors.Is(err, domain.ErrGoalNotFound) {
		return nil, domain.ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	if _, err := s.store.CreateLogsIfMissing(ctx, domain.NewDayLogs(g, today, s.now().UTC())); err != nil {
		return nil, fmt.Errorf("create today's logs: %w", err)
	}
	return s.store.ListLogs(ctx, userID, h, today, today)
}

// WeekLogs returns the logs from Monday of this week through today.
func (s *Service) WeekLogs(ctx context.Context, userID string, h domain.HabitType, today domain.Date) ([]domain.HabitLog, error) {
	logs, err := s.store.ListLogs(ctx, userID, h, today.WeekStart(), today)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return logs, nil
}

// Update is the body of a log update. Which field applies depends on the habit:
// hydrate and sleep take none, diet takes Dishes, focus takes Minutes.
type Update struct {
	Dishes  []domain.Dish `json:"dishes,omitempty"`
	Minutes float64       `json:"minutes,omitempty"`
}

// UpdateLog applies u to the log id of habit h. The log must belong to
// userID and be dated today.
func (s *Service) UpdateLog(ctx context.Context, userID string, h domain.HabitType, id string, u Update, today domain.Date) (domain.HabitLog, error) {
	apply, err := mutation(h, u)
	if err != nil {
		return domain.HabitLog{}, err
	}

	now := s.now().UTC()
	l, err := s.store.UpdateLog(ctx, userID, id, func(l *domain.HabitLog) error {
		if l.Habit != h {
			return domain.ErrLogNotFound
		}
		if l.Date != today {
			return domain.ErrLogClosed
		}
		apply(l)
		if math.IsInf(l.Consumed, 0) || math.IsNaN(l.Consumed) {
			return domain.NewValidationError("consumed", "must be a finite number")
		}
		l.Recompute()
		l.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransientStore) {
			metrics.StoreErrors.WithLabelValues("update_log").Inc()
		}
		return domain.HabitLog{}, fmt.Errorf("update %s log: %w", h, err)
	}

	metrics.HabitLogUpdates.WithLabelValues(string(h)).Inc()
	logger.Debug("log updated", "user", userID, "habit", h, "consumed", l.Consumed, "completed", l.Completed)
	s.afterUpdate(ctx, userID, h, today)
	return l, nil
}

// Drink adds one cup to a hydrate log.
func (s *Service) Drink(ctx context.Context, userID, id string, today domain.Date) (domain.HabitLog, error) {
	return s.UpdateLog(ctx, userID, domain.HabitHydrate, id, Update{}, today)
}

// AddDishes appends dishes to a diet log.
func (s *Service) AddDishes(ctx context.Context, userID, id string, dishes []domain.Dish, today domain.Date) (domain.HabitLog, error) {
	return s.UpdateLog(ctx, userID, domain.HabitDiet, id, Update{Dishes: dishes}, today)
}

// AddFocus adds focused minutes to a focus log.
func (s *Service) AddFocus(ctx context.Context, userID, id string, minutes float64, today domain.Date) (domain.HabitLog, error) {
	return s.UpdateLog(ctx, userID, domain.HabitFocus, id, Update{Minutes: minutes}, today)
}

// CompleteTask marks a sleep or wake-up task done.
func (s *Service) CompleteTask(ctx context.Context, userID, id string, today domain.Date) (domain.HabitLog, error) {
	return s.UpdateLog(ctx, userID, domain.HabitSleep, id, Update{}, today)
}

// mutation validates u for h and returns the change it makes to a log.
func mutation(h domain.HabitType, u Update) (func(*domain.HabitLog), error) {
	switch h {
	case domain.HabitHydrate:
		return func(l *domain.HabitLog) { l.Consumed += l.CupSize }, nil
	case domain.HabitDiet:
		errs := []error{validation.Var("dishes", u.Dishes, "required,min=1")}
		for _, d := range u.Dishes {
			errs = append(errs, validation.Struct(d))
		}
		if err := validation.Join(errs...); err != nil {
			return nil, err
		}
		return func(l *domain.HabitLog) {
			l.Dishes = append(l.Dishes, u.Dishes...)
			l.Consumed = domain.DishCalories(l.Dishes)
		}, nil
	case domain.HabitFocus:
		if err := validation.Var("minutes", u.Minutes, "gt=0,lte="+strconv.Itoa(MaxFocusMinutes)); err != nil {
			return nil, err
		}
		return func(l *domain.HabitLog) { l.Consumed += u.Minutes }, nil
	case domain.HabitSleep:
		return func(l *domain.HabitLog) { l.Consumed = l.Goal }, nil
	default:
		_, err := domain.ParseHabitType(string(h))
		return nil, err
	}
}

// afterUpdate touches the streak and reports the day's totals to quests.
// Failures are logged; quest totals are absolute so the next update heals them.
func (s *Service) afterUpdate(ctx context.Context, userID string, h domain.HabitType, today domain.Date) {
	retry := scheduler.DefaultRetryConfig()
	if s.streak != nil {
		err := scheduler.Retry(ctx, retry, "streak_touch", func(ctx context.Context) error {
			return s.streak.Touch(ctx, userID, today)
		})
		if err != nil {
			logger.Warn("streak touch failed", "user", userID, "err", err)
		}
	}
	if s.quests == nil {
		return
	}
	logs, err := s.store.ListLogs(ctx, userID, h, today, today)
	if err != nil {
		logger.Warn("quest observation skipped", "user", userID, "habit", h, "err", err)
		return
	}
	trigger, value := Observation(h, logs)
	err = scheduler.Retry(ctx, retry, "quest_observe", func(ctx context.Context) error {
		return s.quests.Observe(ctx, userID, trigger, value, today)
	})
	if err != nil {
		logger.Warn("quest observation failed", "user", userID, "trigger", trigger, "err", err)
	}
}

// DayTotals reports today's quest observations for every habit with logs.
func (s *Service) DayTotals(ctx context.Context, userID string, today domain.Date) (map[domain.TriggerType]int, error) {
	totals := make(map[domain.TriggerType]int, len(domain.HabitTypes))
	for _, h := range domain.HabitTypes {
		logs, err := s.store.ListLogs(ctx, userID, h, today, today)
		if err != nil {
			return nil, fmt.Errorf("list %s logs: %w", h, err)
		}
		if len(logs) == 0 {
			continue
		}
		trigger, value := Observation(h, logs)
		totals[trigger] = value
	}
	return totals, nil
}

// Observation maps a habit's logs for one day to the quest trigger they feed.
func Observation(h domain.HabitType, logs []domain.HabitLog) (domain.TriggerType, int) {
	var total float64
	switch h {
	case domain.HabitHydrate:
		for _, l := range logs {
			total += l.Consumed
		}
		return domain.TriggerHydrateGoal, clampCount(total)
	case domain.HabitDiet:
		n := 0
		for _, l := range logs {
			n += len(l.Dishes)
		}
		return domain.TriggerLogMeal, n
	case domain.HabitFocus:
		for _, l := range logs {
			total += l.Consumed
		}
		return domain.TriggerFocusTime, clampCount(total)
	default:
		n := 0
		for _, l := range logs {
			if l.Completed {
				n++
			}
		}
		return domain.TriggerTasksCompleted, n
	}
}

func clampCount(v float64) int {
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// ─── Rollover ───────────────────────────────────────────────────────────────

// Rollover creates today's logs for every saved goal that lacks them.
// Safe to run repeatedly; returns the number of logs created.
func (s *Service) Rollover(ctx context.Context, today domain.Date) (int, error) {
	goals, err := s.store.ListGoals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list goals: %w", err)
	}

	now := s.now().UTC()
	created := 0
	for _, g := range goals {
		n, err := s.store.CreateLogsIfMissing(ctx, domain.NewDayLogs(g, today, now))
		if err != nil {
			return created, fmt.Errorf("rollover %s/%s: %w", g.UserID, g.Habit, err)
		}
		created += n
	}
	metrics.LogsRolledOver.Add(float64(created))
	if created > 0 {
		logger.Info("rolled over habit logs", "date", today, "created", created)
	}
	return created, nil
}
