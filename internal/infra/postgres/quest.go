package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/habitnest/habitnest/internal/domain"
)

// ─── Quests ─────────────────────────────────────────────────────────────────

func (s *Store) UpsertQuest(ctx context.Context, q domain.Quest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quests (id, title, description, type, trigger_type, target_progress, reward_type, reward_amount, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			type = EXCLUDED.type,
			trigger_type = EXCLUDED.trigger_type,
			target_progress = EXCLUDED.target_progress,
			reward_type = EXCLUDED.reward_type,
			reward_amount = EXCLUDED.reward_amount,
			is_active = EXCLUDED.is_active`,
		q.ID, q.Title, q.Description, string(q.Type), string(q.TriggerType),
		q.TargetProgress, string(q.RewardType), q.RewardAmount, q.IsActive,
	)
	if err != nil {
		return wrapErr("upsert quest", err)
	}
	return nil
}

const questColumns = `id, title, description, type, trigger_type, target_progress, reward_type, reward_amount, is_active`

func (s *Store) GetQuest(ctx context.Context, id string) (domain.Quest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questColumns+` FROM quests WHERE id = $1`, id)
	q, err := scanQuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return q, domain.ErrQuestNotFound
	}
	if err != nil {
		return q, wrapErr("get quest", err)
	}
	return q, nil
}

func (s *Store) ListQuests(ctx context.Context, activeOnly bool) ([]domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY type ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr("list quests", err)
	}
	defer rows.Close()

	var quests []domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, wrapErr("list quests", err)
		}
		quests = append(quests, q)
	}
	return quests, rows.Err()
}

func scanQuest(s scanner) (domain.Quest, error) {
	var q domain.Quest
	var typ, trigger, reward string
	err := s.Scan(&q.ID, &q.Title, &q.Description, &typ, &trigger,
		&q.TargetProgress, &reward, &q.RewardAmount, &q.IsActive)
	q.Type = domain.QuestType(typ)
	q.TriggerType = domain.TriggerType(trigger)
	q.RewardType = domain.RewardType(reward)
	return q, err
}

// ─── Quest Progress ─────────────────────────────────────────────────────────

func (s *Store) EnsureProgress(ctx context.Context, userID, questID string, period domain.Date) (domain.QuestProgress, error) {
	var p domain.QuestProgress
	err := s.withTx(ctx, "ensure progress", func(tx *sql.Tx) error {
		var err error
		p, err = ensureProgress(ctx, tx, userID, questID, period, false)
		return err
	})
	return p, err
}

// ensureProgress inserts the period row if missing and reads it back,
// optionally locking it for the rest of the transaction.
func ensureProgress(ctx context.Context, q querier, userID, questID string, period domain.Date, lock bool) (domain.QuestProgress, error) {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO user_quest_progress (id, user_id, quest_id, period_start_date, current_progress, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5)
		 ON CONFLICT (user_id, quest_id, period_start_date) DO NOTHING`,
		uuid.NewString(), userID, questID, period.Time(), time.Now().UTC(),
	); err != nil {
		return domain.QuestProgress{}, err
	}
	query := `SELECT id, user_id, quest_id, period_start_date, current_progress, claimed_at, updated_at
		 FROM user_quest_progress WHERE user_id = $1 AND quest_id = $2 AND period_start_date = $3`
	if lock {
		query += ` FOR UPDATE`
	}
	return scanProgress(q.QueryRowContext(ctx, query, userID, questID, period.Time()))
}

func (s *Store) AdvanceProgress(ctx context.Context, q domain.Quest, userID string, period domain.Date, observed int) (domain.QuestProgress, error) {
	var p domain.QuestProgress
	err := s.withTx(ctx, "advance progress", func(tx *sql.Tx) error {
		var err error
		p, err = ensureProgress(ctx, tx, userID, q.ID, period, true)
		if err != nil {
			return err
		}
		if !domain.Advance(q, &p, observed) {
			return nil
		}
		p.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`UPDATE user_quest_progress SET current_progress = $1, updated_at = $2
			 WHERE id = $3 AND claimed_at IS NULL AND current_progress < $1`,
			p.CurrentProgress, p.UpdatedAt, p.ID,
		)
		return err
	})
	return p, err
}

func (s *Store) ClaimQuest(ctx context.Context, q domain.Quest, userID string, period domain.Date, now time.Time) (domain.QuestProgress, domain.RewardLedger, error) {
	var (
		p domain.QuestProgress
		l domain.RewardLedger
	)
	err := s.withTx(ctx, "claim quest", func(tx *sql.Tx) error {
		var err error
		p, err = ensureProgress(ctx, tx, userID, q.ID, period, true)
		if err != nil {
			return err
		}
		grant, err := domain.ApplyClaim(q, &p, now)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE user_quest_progress SET claimed_at = $1, updated_at = $1
			 WHERE id = $2 AND claimed_at IS NULL`,
			now, p.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrAlreadyClaimed
		}
		l, _, err = mutateLedger(ctx, tx, userID, func(l *domain.RewardLedger) (domain.RewardGrant, error) {
			l.Credit(grant)
			return grant, nil
		})
		return err
	})
	return p, l, err
}

func (s *Store) CountClaimed(ctx context.Context, userID string, t domain.QuestType, from, to domain.Date) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_quest_progress p
		 JOIN quests q ON q.id = p.quest_id
		 WHERE p.user_id = $1 AND q.type = $2 AND p.claimed_at IS NOT NULL
		   AND p.period_start_date BETWEEN $3 AND $4`,
		userID, string(t), from.Time(), to.Time(),
	).Scan(&n)
	if err != nil {
		return 0, wrapErr("count claimed", err)
	}
	return n, nil
}

func scanProgress(s scanner) (domain.QuestProgress, error) {
	var p domain.QuestProgress
	var period time.Time
	var claimed sql.NullTime
	err := s.Scan(&p.ID, &p.UserID, &p.QuestID, &period, &p.CurrentProgress, &claimed, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.PeriodStart = dateOf(period)
	if claimed.Valid {
		t := claimed.Time
		p.ClaimedAt = &t
	}
	return p, nil
}
