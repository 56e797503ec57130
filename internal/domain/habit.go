package domain

import "time"

// ─── Habit Types ────────────────────────────────────────────────────────────

// HabitType identifies one of the tracked habits.
type HabitType string

const (
	HabitSleep   HabitType = "sleep"
	HabitHydrate HabitType = "hydrate"
	HabitDiet    HabitType = "diet"
	HabitFocus   HabitType = "focus"
)

// HabitTypes lists every supported habit.
var HabitTypes = []HabitType{HabitSleep, HabitHydrate, HabitDiet, HabitFocus}

// ParseHabitType returns the habit named s or a ValidationError.
func ParseHabitType(s string) (HabitType, error) {
	for _, h := range HabitTypes {
		if string(h) == s {
			return h, nil
		}
	}
	return "", NewValidationError("habit", "must be one of sleep, hydrate, diet, focus")
}

// Unit is the display unit of a habit's amounts.
func (h HabitType) Unit() string {
	switch h {
	case HabitHydrate:
		return "ml"
	case HabitDiet:
		return "kcal"
	case HabitFocus:
		return "min"
	default:
		return "task"
	}
}

// Sleep log tasks. A sleep goal produces one log per task per day.
const (
	TaskSleep  = "sleep"
	TaskWakeup = "wakeup"
)

// HabitGoal is a user's target for one habit. Only the fields of Habit apply.
type HabitGoal struct {
	UserID        string    `json:"user_id"`
	Habit         HabitType `json:"habit"`
	WaterGoal     float64   `json:"water_goal,omitempty"`    // ml
	CupSize       float64   `json:"cup_size,omitempty"`      // ml
	CaloriesGoal  float64   `json:"calories_goal,omitempty"` // kcal
	FocusGoal     float64   `json:"focus_goal,omitempty"`    // minutes
	SleepTime     string    `json:"sleep_time,omitempty"`    // HH:MM
	WakeupTime    string    `json:"wakeup_time,omitempty"`   // HH:MM
	ReminderTimes []string  `json:"reminder_times,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Dish is one meal entry on a diet log.
type Dish struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Calories float64 `json:"calories" validate:"gt=0"`
}

// HabitLog records one day of progress on a habit.
// Goal and CupSize are snapshots of the goal at creation time.
type HabitLog struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Habit         HabitType `json:"habit"`
	Date          Date      `json:"date"`
	Task          string    `json:"task,omitempty"`
	Goal          float64   `json:"goal"`
	CupSize       float64   `json:"cup_size,omitempty"`
	Consumed      float64   `json:"consumed"`
	Completed     bool      `json:"completed"`
	Dishes        []Dish    `json:"dishes,omitempty"`
	ScheduledTime string    `json:"scheduled_time,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewDayLogs returns the fresh logs a goal produces for day.
// IDs are left empty for the caller to assign.
func NewDayLogs(g HabitGoal, day Date, now time.Time) []HabitLog {
	base := HabitLog{UserID: g.UserID, Habit: g.Habit, Date: day, UpdatedAt: now}
	switch g.Habit {
	case HabitHydrate:
		base.Goal, base.CupSize = g.WaterGoal, g.CupSize
	case HabitDiet:
		base.Goal = g.CaloriesGoal
	case HabitFocus:
		base.Goal = g.FocusGoal
	case HabitSleep:
		sleep, wake := base, base
		sleep.Task, sleep.Goal, sleep.ScheduledTime = TaskSleep, 1, g.SleepTime
		wake.Task, wake.Goal, wake.ScheduledTime = TaskWakeup, 1, g.WakeupTime
		return []HabitLog{sleep, wake}
	}
	return []HabitLog{base}
}

// Recompute derives Completed from Consumed and Goal.
func (l *HabitLog) Recompute() {
	l.Completed = l.Goal > 0 && l.Consumed >= l.Goal
}

// DishCalories sums the calories of every dish.
func DishCalories(dishes []Dish) float64 {
	var total float64
	for _, d := range dishes {
		total += d.Calories
	}
	return total
}
