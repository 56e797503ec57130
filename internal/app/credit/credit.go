// Package credit reads the reward economy: ledger balances and the grant
// history behind them. All writes go through engagement.
package credit

import (
	"context"
	"fmt"

	"github.com/habitnest/habitnest/internal/domain"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Service exposes balances and grant history.
type Service struct {
	store domain.RewardStore
}

// NewService creates a credit service.
func NewService(store domain.RewardStore) *Service {
	return &Service{store: store}
}

// Summary is a user's wallet as seen on a given day.
type Summary struct {
	UserID          string      `json:"user_id"`
	Coins           int64       `json:"coins"`
	Diamonds        int64       `json:"diamonds"`
	Streak          int         `json:"streak"`
	DailyCheckin    int         `json:"daily_checkin"`
	LastCheckinDate domain.Date `json:"last_checkin_date"`
	LastStreakDate  domain.Date `json:"last_streak_date"`
	CheckedInToday  bool        `json:"checked_in_today"`
}

// Summary returns the user's balances. The streak reads 0 once broken.
func (s *Service) Summary(ctx context.Context, userID string, today domain.Date) (Summary, error) {
	l, err := s.store.GetLedger(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("get ledger: %w", err)
	}
	return Summary{
		UserID:          l.UserID,
		Coins:           l.Coins,
		Diamonds:        l.Diamonds,
		Streak:          l.StreakAsOf(today),
		DailyCheckin:    l.DailyCheckin,
		LastCheckinDate: l.LastCheckinDate,
		LastStreakDate:  l.LastStreakDate,
		CheckedInToday:  l.LastCheckinDate == today,
	}, nil
}

// History returns the most recent grants, newest first.
// limit is clamped to [1, MaxHistoryLimit]; 0 selects DefaultHistoryLimit.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.RewardGrant, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	grants, err := s.store.ListGrants(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

// Totals sums a slice of grants.
func Totals(grants []domain.RewardGrant) (coins, diamonds int64) {
	for _, g := range grants {
		coins += g.Coins
		diamonds += g.Diamonds
	}
	return coins, diamonds
}
