package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/habitnest/habitnest/internal/domain"
)

// ─── Quests ─────────────────────────────────────────────────────────────────

type questDoc struct {
	Title          string `firestore:"title"`
	Description    string `firestore:"description"`
	Type           string `firestore:"type"`
	TriggerType    string `firestore:"trigger_type"`
	TargetProgress int    `firestore:"target_progress"`
	RewardType     string `firestore:"reward_type"`
	RewardAmount   int64  `firestore:"reward_amount"`
	IsActive       bool   `firestore:"is_active"`
}

func decodeQuest(snap *firestore.DocumentSnapshot) (domain.Quest, error) {
	var d questDoc
	if err := snap.DataTo(&d); err != nil {
		return domain.Quest{}, fmt.Errorf("decode quest: %w", err)
	}
	return domain.Quest{
		ID: snap.Ref.ID, Title: d.Title, Description: d.Description,
		Type: domain.QuestType(d.Type), TriggerType: domain.TriggerType(d.TriggerType),
		TargetProgress: d.TargetProgress, RewardType: domain.RewardType(d.RewardType),
		RewardAmount: d.RewardAmount, IsActive: d.IsActive,
	}, nil
}

func (s *Store) UpsertQuest(ctx context.Context, q domain.Quest) error {
	_, err := s.client.Collection("quests").Doc(q.ID).Set(ctx, questDoc{
		Title: q.Title, Description: q.Description, Type: string(q.Type),
		TriggerType: string(q.TriggerType), TargetProgress: q.TargetProgress,
		RewardType: string(q.RewardType), RewardAmount: q.RewardAmount, IsActive: q.IsActive,
	})
	if err != nil {
		return wrapErr("upsert quest", err)
	}
	return nil
}

func (s *Store) GetQuest(ctx context.Context, id string) (domain.Quest, error) {
	snap, err := s.client.Collection("quests").Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return domain.Quest{}, domain.ErrQuestNotFound
	}
	if err != nil {
		return domain.Quest{}, wrapErr("get quest", err)
	}
	return decodeQuest(snap)
}

func (s *Store) ListQuests(ctx context.Context, activeOnly bool) ([]domain.Quest, error) {
	iter := s.client.Collection("quests").Documents(ctx)
	defer iter.Stop()

	var quests []domain.Quest
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapErr("list quests", err)
		}
		q, err := decodeQuest(snap)
		if err != nil {
			return nil, err
		}
		if activeOnly && !q.IsActive {
			continue
		}
		quests = append(quests, q)
	}
	sort.Slice(quests, func(i, j int) bool {
		if quests[i].Type != quests[j].Type {
			return quests[i].Type < quests[j].Type
		}
		return quests[i].ID < quests[j].ID
	})
	return quests, nil
}

// ─── Quest Progress ─────────────────────────────────────────────────────────

type progressDoc struct {
	QuestID         string     `firestore:"quest_id"`
	QuestType       string     `firestore:"quest_type"`
	PeriodStart     string     `firestore:"period_start_date"`
	CurrentProgress int        `firestore:"current_progress"`
	Claimed         bool       `firestore:"claimed"`
	ClaimedAt       *time.Time `firestore:"claimed_at"`
	UpdatedAt       time.Time  `firestore:"updated_at"`
}

func (s *Store) progressRef(userID, questID string, period domain.Date) *firestore.DocumentRef {
	return s.user(userID).Collection("quest_progress").Doc(questID + "_" + period.String())
}

// readProgress returns the stored row or a zero row for a new period.
func readProgress(tx *firestore.Transaction, ref *firestore.DocumentRef, userID, questID string, period domain.Date) (domain.QuestProgress, bool, error) {
	p := domain.QuestProgress{ID: ref.ID, UserID: userID, QuestID: questID, PeriodStart: period}
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		p.UpdatedAt = time.Now().UTC()
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	var d progressDoc
	if err := snap.DataTo(&d); err != nil {
		return p, false, fmt.Errorf("decode progress: %w", err)
	}
	p.CurrentProgress = d.CurrentProgress
	p.ClaimedAt = d.ClaimedAt
	p.UpdatedAt = d.UpdatedAt
	return p, true, nil
}

func encodeProgress(p domain.QuestProgress, t domain.QuestType) progressDoc {
	return progressDoc{
		QuestID: p.QuestID, QuestType: string(t), PeriodStart: p.PeriodStart.String(),
		CurrentProgress: p.CurrentProgress, Claimed: p.ClaimedAt != nil,
		ClaimedAt: p.ClaimedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (s *Store) EnsureProgress(ctx context.Context, userID, questID string, period domain.Date) (domain.QuestProgress, error) {
	q, err := s.GetQuest(ctx, questID)
	if err != nil {
		return domain.QuestProgress{}, err
	}
	ref := s.progressRef(userID, questID, period)
	var out domain.QuestProgress
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		p, found, err := readProgress(tx, ref, userID, questID, period)
		if err != nil {
			return err
		}
		out = p
		if found {
			return nil
		}
		return tx.Create(ref, encodeProgress(p, q.Type))
	})
	if err != nil {
		return domain.QuestProgress{}, wrapErr("ensure progress", err)
	}
	return out, nil
}

func (s *Store) AdvanceProgress(ctx context.Context, q domain.Quest, userID string, period domain.Date, observed int) (domain.QuestProgress, error) {
	ref := s.progressRef(userID, q.ID, period)
	var out domain.QuestProgress
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		p, found, err := readProgress(tx, ref, userID, q.ID, period)
		if err != nil {
			return err
		}
		changed := domain.Advance(q, &p, observed)
		out = p
		if found && !changed {
			return nil
		}
		p.UpdatedAt = time.Now().UTC()
		out = p
		return tx.Set(ref, encodeProgress(p, q.Type))
	})
	if err != nil {
		return domain.QuestProgress{}, wrapErr("advance progress", err)
	}
	return out, nil
}

// ClaimQuest reads the progress row and the ledger, then writes both plus
// the grant record. Firestore aborts and retries the closure if either
// document changed underneath it.
func (s *Store) ClaimQuest(ctx context.Context, q domain.Quest, userID string, period domain.Date, now time.Time) (domain.QuestProgress, domain.RewardLedger, error) {
	ref := s.progressRef(userID, q.ID, period)
	var (
		outP domain.QuestProgress
		outL domain.RewardLedger
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		p, _, err := readProgress(tx, ref, userID, q.ID, period)
		if err != nil {
			return err
		}
		l, err := s.readLedger(tx, userID)
		if err != nil {
			return err
		}
		grant, err := domain.ApplyClaim(q, &p, now)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, encodeProgress(p, q.Type)); err != nil {
			return err
		}
		l.Credit(grant)
		if _, err := s.writeLedger(tx, l, grant); err != nil {
			return err
		}
		l.Version++
		outP, outL = p, l
		return nil
	})
	if err != nil {
		return domain.QuestProgress{}, domain.RewardLedger{}, wrapErr("claim quest", err)
	}
	return outP, outL, nil
}

func (s *Store) CountClaimed(ctx context.Context, userID string, t domain.QuestType, from, to domain.Date) (int, error) {
	iter := s.user(userID).Collection("quest_progress").
		Where("quest_type", "==", string(t)).
		Where("claimed", "==", true).
		Where("period_start_date", ">=", from.String()).
		Where("period_start_date", "<=", to.String()).
		Documents(ctx)
	defer iter.Stop()

	n := 0
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, wrapErr("count claimed", err)
		}
		n++
	}
	return n, nil
}
