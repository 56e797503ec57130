package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitnest/habitnest/internal/app/validation"
	"github.com/habitnest/habitnest/internal/domain"
	"github.com/habitnest/habitnest/internal/infra/metrics"
	"github.com/habitnest/habitnest/internal/logger"
)

// QuestService tracks per-period quest progress and pays out claims.
// Progress is fed absolute observations (e.g. ml drunk today), so replaying
// an observation is harmless and a missed one heals on the next update.
type QuestService struct {
	store    domain.QuestStore
	activity []ActivitySource
}

// ActivitySource reports a user's absolute activity totals for a day,
// keyed by the quest trigger they feed.
type ActivitySource interface {
	DayTotals(ctx context.Context, userID string, today domain.Date) (map[domain.TriggerType]int, error)
}

// SetActivity registers the sources List recomputes progress from.
func (s *QuestService) SetActivity(sources ...ActivitySource) {
	s.activity = sources
}

// NewQuestService creates a quest service.
func NewQuestService(store domain.QuestStore) *QuestService {
	return &QuestService{store: store}
}

// SeedDefaults installs the default catalog when no quests are defined.
// Returns the number of quests inserted.
func (s *QuestService) SeedDefaults(ctx context.Context) (int, error) {
	existing, err := s.store.ListQuests(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list quests: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	return s.Import(ctx, domain.DefaultQuests)
}

// Import validates and upserts quest definitions. Nothing is written if
// any definition is invalid.
func (s *QuestService) Import(ctx context.Context, quests []domain.Quest) (int, error) {
	seen := make(map[string]bool, len(quests))
	var errs []error
	for _, q := range quests {
		if err := validation.Struct(q); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[q.ID] {
			errs = append(errs, domain.NewValidationError("id", "duplicate quest "+q.ID))
		}
		seen[q.ID] = true
	}
	if err := validation.Join(errs...); err != nil {
		return 0, err
	}

	for _, q := range quests {
		if err := s.store.UpsertQuest(ctx, q); err != nil {
			return 0, fmt.Errorf("upsert quest %s: %w", q.ID, err)
		}
	}
	logger.Info("quests imported", "count", len(quests))
	return len(quests), nil
}

// List returns every active quest with the user's progress for its current
// period. Progress is first brought up to date from the activity sources.
func (s *QuestService) List(ctx context.Context, userID string, today domain.Date) ([]domain.QuestView, error) {
	if err := s.Refresh(ctx, userID, today); err != nil {
		logger.Warn("quest refresh", "user", userID, "err", err)
	}

	quests, err := s.store.ListQuests(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}

	views := make([]domain.QuestView, 0, len(quests))
	for _, q := range quests {
		p, err := s.store.EnsureProgress(ctx, userID, q.ID, q.PeriodStart(today))
		if err != nil {
			return nil, fmt.Errorf("progress for %s: %w", q.ID, err)
		}
		views = append(views, domain.NewQuestView(q, p))
	}
	return views, nil
}

// Refresh re-observes today's totals from every activity source and the
// month's daily claims. Observations are absolute, so this never over-counts.
func (s *QuestService) Refresh(ctx context.Context, userID string, today domain.Date) error {
	var errs []error
	for _, src := range s.activity {
		totals, err := src.DayTotals(ctx, userID, today)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for trigger, value := range totals {
			errs = append(errs, s.Observe(ctx, userID, trigger, value, today))
		}
	}
	errs = append(errs, s.observeMonthly(ctx, userID, today))
	return errors.Join(errs...)
}

// Observe feeds an absolute activity value to every active quest with the
// given trigger. Errors on one quest do not stop the others.
func (s *QuestService) Observe(ctx context.Context, userID string, trigger domain.TriggerType, value int, today domain.Date) error {
	quests, err := s.store.ListQuests(ctx, true)
	if err != nil {
		return fmt.Errorf("list quests: %w", err)
	}

	var errs []error
	for _, q := range quests {
		if q.TriggerType != trigger {
			continue
		}
		before, err := s.store.EnsureProgress(ctx, userID, q.ID, q.PeriodStart(today))
		if err != nil {
			errs = append(errs, fmt.Errorf("progress for %s: %w", q.ID, err))
			continue
		}
		after, err := s.store.AdvanceProgress(ctx, q, userID, q.PeriodStart(today), value)
		if err != nil {
			errs = append(errs, fmt.Errorf("advance %s: %w", q.ID, err))
			continue
		}
		if after.CurrentProgress > before.CurrentProgress {
			metrics.QuestProgressUpdates.WithLabelValues(string(trigger)).Inc()
			logger.Debug("quest advanced", "user", userID, "quest", q.ID, "progress", after.CurrentProgress)
		}
	}
	return errors.Join(errs...)
}

// Claim pays out a completed quest for its current period.
// Returns domain.ErrQuestNotFound for unknown or inactive quests,
// domain.ErrNotCompleted below target and domain.ErrAlreadyClaimed on repeat.
func (s *QuestService) Claim(ctx context.Context, userID, questID string, today domain.Date, now time.Time) (domain.QuestView, domain.RewardLedger, error) {
	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return domain.QuestView{}, domain.RewardLedger{}, fmt.Errorf("get quest: %w", err)
	}
	if !q.IsActive {
		return domain.QuestView{}, domain.RewardLedger{}, fmt.Errorf("quest %s inactive: %w", questID, domain.ErrQuestNotFound)
	}

	p, l, err := s.store.ClaimQuest(ctx, q, userID, q.PeriodStart(today), now)
	if err != nil {
		recordRejection("quest", err)
		return domain.QuestView{}, domain.RewardLedger{}, fmt.Errorf("claim %s: %w", questID, err)
	}

	metrics.QuestClaims.WithLabelValues(string(q.Type)).Inc()
	if q.RewardType == domain.RewardDiamonds {
		metrics.RecordGrant(string(domain.GrantQuest), 0, q.RewardAmount)
	} else {
		metrics.RecordGrant(string(domain.GrantQuest), q.RewardAmount, 0)
	}
	logger.Info("quest claimed", "user", userID, "quest", q.ID, "reward", q.RewardAmount, "currency", q.RewardType)

	if q.Type == domain.QuestDaily {
		if err := s.observeMonthly(ctx, userID, today); err != nil {
			logger.Warn("monthly quest progress", "user", userID, "err", err)
		}
	}
	return domain.NewQuestView(q, p), l, nil
}

// observeMonthly recounts daily claims this month for monthly_daily_quests.
func (s *QuestService) observeMonthly(ctx context.Context, userID string, today domain.Date) error {
	n, err := s.store.CountClaimed(ctx, userID, domain.QuestDaily, today.MonthStart(), today)
	if err != nil {
		return fmt.Errorf("count claimed: %w", err)
	}
	return s.Observe(ctx, userID, domain.TriggerMonthlyDaily, n, today)
}
