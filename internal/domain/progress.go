package domain

import (
	"math"
	"math/big"
	"strconv"
)

// ─── Habit Progress ─────────────────────────────────────────────────────────

// Float returns a pointer to v, for optional amounts.
func Float(v float64) *float64 { return &v }

// Percentage returns how far consumed is toward goal, clamped to [0, 100].
// Missing or non-positive goals and missing amounts yield 0.
func Percentage(consumed, goal *float64) float64 {
	if goal == nil || consumed == nil {
		return 0
	}
	g, c := *goal, *consumed
	if math.IsNaN(g) || g <= 0 || math.IsNaN(c) {
		return 0
	}
	pct := c / g * 100
	return math.Min(math.Max(pct, 0), 100)
}

// FormatAmount renders an amount with its unit, e.g. "1500 ml" or "12.5 min".
// A missing amount renders as "? <unit>".
func FormatAmount(amount *float64, unit string) string {
	if amount == nil {
		return "? " + unit
	}
	return formatNumber(*amount) + " " + unit
}

func formatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == math.Trunc(v):
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if s, ok := formatTie(v); ok {
		return s
	}
	// FormatFloat rounds the exact binary value; only exact ties need care.
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// formatTie handles values exactly halfway between two tenths, which round
// away from zero.
func formatTie(v float64) (string, bool) {
	x := new(big.Float).SetPrec(128).SetFloat64(math.Abs(v))
	x.Mul(x, big.NewFloat(10))
	n, _ := x.Int(nil)
	frac := new(big.Float).Sub(x, new(big.Float).SetInt(n))
	if frac.Cmp(big.NewFloat(0.5)) != 0 {
		return "", false
	}
	n.Add(n, big.NewInt(1))
	digits := n.String()
	if len(digits) < 2 {
		digits = "0" + digits
	}
	s := digits[:len(digits)-1] + "." + digits[len(digits)-1:]
	if v < 0 {
		s = "-" + s
	}
	return s, true
}

// HabitProgress is the display form of one habit log.
type HabitProgress struct {
	Percent         float64 `json:"percent"`
	Completed       bool    `json:"completed"`
	ConsumedDisplay string  `json:"consumed_display"`
	GoalDisplay     string  `json:"goal_display"`
}

// LogProgress derives the display progress of a habit log.
// Completed comes from the stored flag, never from the percentage.
func LogProgress(l HabitLog) HabitProgress {
	consumed, goal := Float(l.Consumed), Float(l.Goal)
	unit := l.Habit.Unit()
	return HabitProgress{
		Percent:         Percentage(consumed, goal),
		Completed:       l.Completed,
		ConsumedDisplay: FormatAmount(consumed, unit),
		GoalDisplay:     FormatAmount(goal, unit),
	}
}
