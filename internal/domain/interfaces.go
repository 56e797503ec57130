package domain

import (
	"context"
	"time"
)

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// HabitStore persists habit goals and daily logs.
type HabitStore interface {
	UpsertGoal(ctx context.Context, g HabitGoal) error
	// GetGoal returns ErrGoalNotFound when the user has no goal for h.
	GetGoal(ctx context.Context, userID string, h HabitType) (HabitGoal, error)
	ListGoals(ctx context.Context) ([]HabitGoal, error)

	// ReplaceDayLogs deletes the user's logs for h on day and inserts logs, atomically.
	ReplaceDayLogs(ctx context.Context, userID string, h HabitType, day Date, logs []HabitLog) error
	// CreateLogsIfMissing inserts logs whose (user, habit, date, task) key is free
	// and returns how many were created.
	CreateLogsIfMissing(ctx context.Context, logs []HabitLog) (int, error)
	ListLogs(ctx context.Context, userID string, h HabitType, from, to Date) ([]HabitLog, error)
	// UpdateLog applies fn to the stored log under a transaction.
	// ErrLogNotFound when no log with id belongs to userID.
	UpdateLog(ctx context.Context, userID, id string, fn func(l *HabitLog) error) (HabitLog, error)
}

// RewardStore persists ledgers and their grant history.
type RewardStore interface {
	// GetLedger returns the user's ledger, or NewLedger(userID) if none is stored.
	GetLedger(ctx context.Context, userID string) (RewardLedger, error)
	// UpdateLedger runs fn against the stored ledger in one atomic
	// read-modify-write and persists any non-empty grant it returns.
	UpdateLedger(ctx context.Context, userID string, fn LedgerMutation) (RewardLedger, RewardGrant, error)
	ListGrants(ctx context.Context, userID string, limit int) ([]RewardGrant, error)
}

// QuestStore persists quest definitions and per-period progress.
type QuestStore interface {
	UpsertQuest(ctx context.Context, q Quest) error
	GetQuest(ctx context.Context, id string) (Quest, error)
	ListQuests(ctx context.Context, activeOnly bool) ([]Quest, error)

	// EnsureProgress returns the progress row for (user, quest, period),
	// creating it with zero progress on first read.
	EnsureProgress(ctx context.Context, userID, questID string, period Date) (QuestProgress, error)
	// AdvanceProgress applies Advance to the row under a transaction.
	AdvanceProgress(ctx context.Context, q Quest, userID string, period Date, observed int) (QuestProgress, error)
	// ClaimQuest applies ApplyClaim and credits the ledger in one transaction.
	// At most one claim per (user, quest, period) ever succeeds.
	ClaimQuest(ctx context.Context, q Quest, userID string, period Date, now time.Time) (QuestProgress, RewardLedger, error)
	// CountClaimed counts claimed rows of quests of type t with period in [from, to].
	CountClaimed(ctx context.Context, userID string, t QuestType, from, to Date) (int, error)
}

// Store is a complete persistence backend.
type Store interface {
	HabitStore
	RewardStore
	QuestStore
	Ping(ctx context.Context) error
	Close() error
}
