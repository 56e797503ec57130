// Package metrics provides Prometheus metrics for HabitNest.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Check-ins ──────────────────────────────────────────────────────────────

// Checkins counts successful daily check-ins by slot index.
var Checkins = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "habitnest",
	Name:      "checkins_total",
	Help:      "Total successful daily check-ins.",
}, []string{"slot"})

// ClaimsRejected counts claims refused by a guard, by kind and reason.
var ClaimsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "habitnest",
	Name:      "claims_rejected_total",
	Help:      "Total check-in and quest claims rejected by a guard.",
}, []string{"kind", "reason"})

// ─── Quests ─────────────────────────────────────────────────────────────────

// QuestClaims counts successful quest claims by quest type.
var QuestClaims = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "habitnest",
	Name:      "quest_claims_total",
	Help:      "Total successful quest claims.",
}, []string{"type"})

// QuestProgressUpdates counts progress observations that advanced a quest.
var QuestProgressUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "habitnest",
	Name:      "quest_progress_updates_total",
	Help:      "Total quest progress advances.",
}, []string{"trigger"})

// ─── Rewards ────────────────────────────────────────────────────────────────

// RewardsGranted sums currency credited to ledgers.
var RewardsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "habitnest",
	Name:      "rewards_granted_total",
	Help:      "Total currency credited, by currency and source.",
}, []string{"currency", "source"})

// ─── Habits ─────────────────────────────────────────────────────────────────

// HabitLogUpdates counts habit log mutations by habit.
var HabitLogUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "habitnest",
	Name:      "habit_log_updates_total",
	Help:      "Total habit log updates.",
}, []string{"habit"})

// LogsRolledOver counts logs created by the day rollover.
var LogsRolledOver = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "habitnest",
	Name:      "logs_rolled_over_total",
	Help:      "Total habit logs created by the day rollover.",
})

// ─── Store ──────────────────────────────────────────────────────────────────

// StoreErrors counts transient store failures by operation.
var StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "habitnest",
	Name:      "store_transient_errors_total",
	Help:      "Total transient store errors.",
}, []string{"op"})

// StoreRetries counts retries of operations that failed transiently.
var StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "habitnest",
	Name:      "store_retries_total",
	Help:      "Total retries after transient store errors.",
}, []string{"op"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthStatus is 1 when a named check passes, 0 otherwise.
var HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "habitnest",
	Name:      "health_status",
	Help:      "Health check status (1 = healthy).",
}, []string{"check"})

// RecordGrant adds a grant's currencies to RewardsGranted.
func RecordGrant(source string, coins, diamonds int64) {
	if coins > 0 {
		RewardsGranted.WithLabelValues("coins", source).Add(float64(coins))
	}
	if diamonds > 0 {
		RewardsGranted.WithLabelValues("diamonds", source).Add(float64(diamonds))
	}
}
