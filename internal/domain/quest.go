// Package domain holds the pure types and derivations of the habit rewards
// engine: habit progress, the daily check-in calendar, quests and the ledger.
// Nothing here performs I/O.
package domain

import (
	"time"
)

// ─── Quest Types ────────────────────────────────────────────────────────────

// QuestType sets the period a quest resets on.
type QuestType string

const (
	QuestDaily   QuestType = "daily"
	QuestMonthly QuestType = "monthly"
)

// TriggerType names the activity that advances a quest.
type TriggerType string

const (
	TriggerHydrateGoal    TriggerType = "hydrate_goal"         // ml drunk today
	TriggerTasksCompleted TriggerType = "tasks_completed"      // sleep tasks done today
	TriggerLogMeal        TriggerType = "log_meal"             // dishes logged today
	TriggerFocusTime      TriggerType = "focus_time"           // focus minutes today
	TriggerCheckin        TriggerType = "checkin"              // 1 once checked in today
	TriggerMonthlyDaily   TriggerType = "monthly_daily_quests" // daily quests claimed this month
)

// Quest is an authored challenge. Definitions are read-only to the engine.
type Quest struct {
	ID             string      `json:"id" toml:"id" validate:"required,max=64"`
	Title          string      `json:"title" toml:"title" validate:"required"`
	Description    string      `json:"description" toml:"description"`
	Type           QuestType   `json:"type" toml:"type" validate:"oneof=daily monthly"`
	TriggerType    TriggerType `json:"trigger_type" toml:"trigger_type" validate:"oneof=hydrate_goal tasks_completed log_meal focus_time checkin monthly_daily_quests"`
	TargetProgress int         `json:"target_progress" toml:"target_progress" validate:"gt=0"`
	RewardType     RewardType  `json:"reward_type" toml:"reward_type" validate:"oneof=coins diamonds"`
	RewardAmount   int64       `json:"reward_amount" toml:"reward_amount" validate:"gt=0"`
	IsActive       bool        `json:"is_active" toml:"is_active"`
}

// PeriodStart anchors the quest's current period: today for daily quests,
// the first of the month for monthly ones.
func (q Quest) PeriodStart(today Date) Date {
	if q.Type == QuestMonthly {
		return today.MonthStart()
	}
	return today
}

// QuestProgress is a user's progress on one quest for one period.
type QuestProgress struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	QuestID         string     `json:"quest_id"`
	PeriodStart     Date       `json:"period_start_date"`
	CurrentProgress int        `json:"current_progress"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// QuestStatus is derived on read and never stored.
type QuestStatus string

const (
	StatusPending   QuestStatus = "pending"
	StatusCompleted QuestStatus = "completed"
	StatusClaimed   QuestStatus = "claimed"
)

// IsCompleted reports whether progress has reached the quest's target.
func IsCompleted(q Quest, p QuestProgress) bool {
	return p.CurrentProgress >= q.TargetProgress
}

// IsClaimable reports whether the reward can be claimed now.
func IsClaimable(q Quest, p QuestProgress) bool {
	return IsCompleted(q, p) && p.ClaimedAt == nil
}

// Status derives the quest's lifecycle state.
func Status(q Quest, p QuestProgress) QuestStatus {
	switch {
	case p.ClaimedAt != nil:
		return StatusClaimed
	case IsCompleted(q, p):
		return StatusCompleted
	default:
		return StatusPending
	}
}

// Advance raises progress to the observed value, capped at the target.
// Progress never decreases and is frozen once claimed. Reports whether it changed.
func Advance(q Quest, p *QuestProgress, observed int) bool {
	if p.ClaimedAt != nil {
		return false
	}
	next := min(observed, q.TargetProgress)
	if next <= p.CurrentProgress {
		return false
	}
	p.CurrentProgress = next
	return true
}

// ApplyClaim marks p claimed at now and returns the reward to credit.
func ApplyClaim(q Quest, p *QuestProgress, now time.Time) (RewardGrant, error) {
	if p.ClaimedAt != nil {
		return RewardGrant{}, ErrAlreadyClaimed
	}
	if !IsCompleted(q, *p) {
		return RewardGrant{}, ErrNotCompleted
	}
	claimed := now
	p.ClaimedAt = &claimed
	p.UpdatedAt = now

	g := RewardGrant{
		UserID:    p.UserID,
		Source:    GrantQuest,
		Ref:       q.ID + "@" + p.PeriodStart.String(),
		GrantedAt: now,
	}
	if q.RewardType == RewardDiamonds {
		g.Diamonds = q.RewardAmount
	} else {
		g.Coins = q.RewardAmount
	}
	return g, nil
}

// QuestView joins a quest with its current-period progress for display.
type QuestView struct {
	Quest       Quest         `json:"quest"`
	Progress    QuestProgress `json:"progress"`
	Percent     float64       `json:"percent"`
	IsCompleted bool          `json:"is_completed"`
	IsClaimable bool          `json:"is_claimable"`
	Status      QuestStatus   `json:"status"`
}

// NewQuestView derives the display state of q.
func NewQuestView(q Quest, p QuestProgress) QuestView {
	target := float64(q.TargetProgress)
	return QuestView{
		Quest:       q,
		Progress:    p,
		Percent:     Percentage(Float(float64(p.CurrentProgress)), &target),
		IsCompleted: IsCompleted(q, p),
		IsClaimable: IsClaimable(q, p),
		Status:      Status(q, p),
	}
}

// DefaultQuests is the catalog seeded into an empty store.
var DefaultQuests = []Quest{
	{ID: "daily-hydrate", Title: "Stay hydrated", Description: "Drink 1500 ml of water", Type: QuestDaily, TriggerType: TriggerHydrateGoal, TargetProgress: 1500, RewardType: RewardCoins, RewardAmount: 20, IsActive: true},
	{ID: "daily-meals", Title: "Log your meals", Description: "Log 3 dishes", Type: QuestDaily, TriggerType: TriggerLogMeal, TargetProgress: 3, RewardType: RewardCoins, RewardAmount: 15, IsActive: true},
	{ID: "daily-focus", Title: "Deep work", Description: "Focus for 25 minutes", Type: QuestDaily, TriggerType: TriggerFocusTime, TargetProgress: 25, RewardType: RewardCoins, RewardAmount: 20, IsActive: true},
	{ID: "daily-sleep", Title: "Sleep on schedule", Description: "Complete your sleep and wake-up tasks", Type: QuestDaily, TriggerType: TriggerTasksCompleted, TargetProgress: 2, RewardType: RewardCoins, RewardAmount: 15, IsActive: true},
	{ID: "daily-checkin", Title: "Show up", Description: "Check in today", Type: QuestDaily, TriggerType: TriggerCheckin, TargetProgress: 1, RewardType: RewardCoins, RewardAmount: 5, IsActive: true},
	{ID: "monthly-dedication", Title: "Dedicated", Description: "Claim 20 daily quests this month", Type: QuestMonthly, TriggerType: TriggerMonthlyDaily, TargetProgress: 20, RewardType: RewardDiamonds, RewardAmount: 5, IsActive: true},
}
