package engagement

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/habitnest/habitnest/internal/domain"
	"github.com/habitnest/habitnest/internal/infra/metrics"
	"github.com/habitnest/habitnest/internal/infra/scheduler"
	"github.com/habitnest/habitnest/internal/logger"
)

// ProgressObserver receives activity observations for quest tracking.
type ProgressObserver interface {
	Observe(ctx context.Context, userID string, trigger domain.TriggerType, value int, today domain.Date) error
}

// CheckinService runs the daily check-in.
type CheckinService struct {
	store  domain.RewardStore
	quests ProgressObserver
}

// NewCheckinService creates a check-in service. quests may be nil.
func NewCheckinService(store domain.RewardStore, quests ProgressObserver) *CheckinService {
	return &CheckinService{store: store, quests: quests}
}

// CheckinStatus is the ledger together with its derived calendar.
type CheckinStatus struct {
	Ledger   domain.RewardLedger    `json:"ledger"`
	Calendar domain.CheckinCalendar `json:"calendar"`
}

// CheckinResult describes a successful check-in.
type CheckinResult struct {
	CheckinStatus
	Grant domain.RewardGrant `json:"grant"`
}

// Calendar returns today's check-in calendar.
func (s *CheckinService) Calendar(ctx context.Context, userID string, today domain.Date) (CheckinStatus, error) {
	l, err := s.store.GetLedger(ctx, userID)
	if err != nil {
		return CheckinStatus{}, fmt.Errorf("get ledger: %w", err)
	}
	return statusOf(l, today), nil
}

// statusOf builds the view of l on today. The streak is reported as of
// today, so a lapsed streak reads 0 before the next activity rewrites it.
func statusOf(l domain.RewardLedger, today domain.Date) CheckinStatus {
	l.Streak = l.StreakAsOf(today)
	return CheckinStatus{Ledger: l, Calendar: domain.DeriveCalendar(l, today)}
}

// CheckIn claims today's slot. Returns domain.ErrAlreadyCheckedIn when
// today's slot is already claimed; the ledger is then left untouched.
func (s *CheckinService) CheckIn(ctx context.Context, userID string, today domain.Date) (CheckinResult, error) {
	l, g, err := s.store.UpdateLedger(ctx, userID, func(l *domain.RewardLedger) (domain.RewardGrant, error) {
		return domain.ApplyCheckin(l, today)
	})
	if err != nil {
		recordRejection("checkin", err)
		return CheckinResult{}, fmt.Errorf("check in: %w", err)
	}

	metrics.Checkins.WithLabelValues(strconv.Itoa(l.DailyCheckin)).Inc()
	metrics.RecordGrant(string(domain.GrantCheckin), g.Coins, g.Diamonds)
	logger.Info("checked in", "user", userID, "slot", l.DailyCheckin, "coins", g.Coins, "diamonds", g.Diamonds)

	if s.quests != nil {
		err := scheduler.Retry(ctx, scheduler.DefaultRetryConfig(), "quest_observe", func(ctx context.Context) error {
			return s.quests.Observe(ctx, userID, domain.TriggerCheckin, 1, today)
		})
		if err != nil {
			logger.Warn("checkin quest progress", "user", userID, "err", err)
		}
	}

	return CheckinResult{
		CheckinStatus: statusOf(l, today),
		Grant:         g,
	}, nil
}

// DayTotals reports the checkin trigger: 1 once today's slot is claimed.
func (s *CheckinService) DayTotals(ctx context.Context, userID string, today domain.Date) (map[domain.TriggerType]int, error) {
	l, err := s.store.GetLedger(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get ledger: %w", err)
	}
	if l.LastCheckinDate != today {
		return nil, nil
	}
	return map[domain.TriggerType]int{domain.TriggerCheckin: 1}, nil
}

// recordRejection counts guard rejections and transient failures.
func recordRejection(kind string, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadyCheckedIn), errors.Is(err, domain.ErrAlreadyClaimed):
		metrics.ClaimsRejected.WithLabelValues(kind, "already_claimed").Inc()
	case errors.Is(err, domain.ErrNotCompleted):
		metrics.ClaimsRejected.WithLabelValues(kind, "not_completed").Inc()
	case errors.Is(err, domain.ErrTransientStore):
		metrics.StoreErrors.WithLabelValues(kind).Inc()
	}
}
