package domain

import "time"

// ─── Reward Ledger ──────────────────────────────────────────────────────────

// RewardType is a currency held on the ledger.
type RewardType string

const (
	RewardCoins    RewardType = "coins"
	RewardDiamonds RewardType = "diamonds"
)

// RewardLedger is a user's balance, streak and check-in state.
type RewardLedger struct {
	UserID          string `json:"user_id"`
	Coins           int64  `json:"coins"`
	Diamonds        int64  `json:"diamonds"`
	Streak          int    `json:"streak"`
	// DailyCheckin is the slot last claimed (0-6), not the next slot to
	// claim as the legacy (slot+1)%7 storage did; migrate such rows by
	// subtracting one modulo 7.
	DailyCheckin    int    `json:"daily_checkin"`
	LastCheckinDate Date   `json:"last_checkin_date"`
	LastStreakDate  Date   `json:"last_streak_date"`
	Version         int64  `json:"-"`
}

// NewLedger returns the ledger a user starts with.
func NewLedger(userID string) RewardLedger {
	return RewardLedger{
		UserID:          userID,
		LastCheckinDate: NeverDate,
		LastStreakDate:  NeverDate,
	}
}

// GrantSource says which transaction produced a grant.
type GrantSource string

const (
	GrantCheckin GrantSource = "checkin"
	GrantQuest   GrantSource = "quest"
)

// RewardGrant is one credit applied to a ledger. Stores persist non-empty
// grants alongside the ledger write as an audit trail.
type RewardGrant struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Source    GrantSource `json:"source"`
	Ref       string      `json:"ref"`
	Coins     int64       `json:"coins"`
	Diamonds  int64       `json:"diamonds"`
	GrantedAt time.Time   `json:"granted_at"`
}

// Empty reports whether the grant credits nothing.
func (g RewardGrant) Empty() bool { return g.Coins == 0 && g.Diamonds == 0 }

// Credit adds the grant's currencies to the ledger.
func (l *RewardLedger) Credit(g RewardGrant) {
	l.Coins += g.Coins
	l.Diamonds += g.Diamonds
}

// LedgerMutation transforms a ledger inside a store transaction. Returning an
// error aborts the transaction with no side effect.
type LedgerMutation func(l *RewardLedger) (RewardGrant, error)

// ─── Streak ─────────────────────────────────────────────────────────────────

// ApplyStreak records activity on today: same day is a no-op, the next day
// extends the streak, anything later restarts it at 1.
func ApplyStreak(l *RewardLedger, today Date) (RewardGrant, error) {
	gap := today.DaysSince(l.LastStreakDate)
	switch {
	case gap <= 0:
		return RewardGrant{}, nil
	case gap == 1:
		l.Streak++
	default:
		l.Streak = 1
	}
	l.LastStreakDate = today
	return RewardGrant{}, nil
}

// StreakAsOf is the streak as seen on today; a missed day reads as 0.
func (l RewardLedger) StreakAsOf(today Date) int {
	if today.DaysSince(l.LastStreakDate) > 1 {
		return 0
	}
	return l.Streak
}
