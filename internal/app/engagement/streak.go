// Package engagement implements the HabitNest reward engine: the daily
// check-in calendar, activity streaks and quests. Every mutation runs as one
// atomic read-modify-write in the store; services only decide what to apply.
package engagement

import (
	"context"
	"fmt"

	"github.com/habitnest/habitnest/internal/domain"
	"github.com/habitnest/habitnest/internal/logger"
)

// StreakService manages activity streaks.
// A day counts when the user updates any habit log.
// Streaks break silently: a missed day reads as 0 and the next activity restarts at 1.
type StreakService struct {
	store domain.RewardStore
}

// NewStreakService creates a streak service.
func NewStreakService(store domain.RewardStore) *StreakService {
	return &StreakService{store: store}
}

// Current returns the user's streak as seen on today.
func (s *StreakService) Current(ctx context.Context, userID string, today domain.Date) (int, error) {
	l, err := s.store.GetLedger(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get ledger: %w", err)
	}
	return l.StreakAsOf(today), nil
}

// Touch records activity on today.
// Same day: no-op. Consecutive: extend. Gap: restart at 1.
func (s *StreakService) Touch(ctx context.Context, userID string, today domain.Date) error {
	l, err := s.store.GetLedger(ctx, userID)
	if err != nil {
		return fmt.Errorf("get ledger: %w", err)
	}
	if l.LastStreakDate == today {
		return nil
	}

	updated, _, err := s.store.UpdateLedger(ctx, userID, func(l *domain.RewardLedger) (domain.RewardGrant, error) {
		return domain.ApplyStreak(l, today)
	})
	if err != nil {
		return fmt.Errorf("touch streak: %w", err)
	}
	logger.Debug("streak touched", "user", userID, "streak", updated.Streak)
	return nil
}
