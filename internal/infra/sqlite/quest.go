package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/habitnest/habitnest/internal/domain"
)

// ─── Quests ─────────────────────────────────────────────────────────────────

// UpsertQuest creates or replaces a quest definition.
func (d *DB) UpsertQuest(ctx context.Context, q domain.Quest) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO quests (id, title, description, type, trigger_type, target_progress, reward_type, reward_amount, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			type = excluded.type,
			trigger_type = excluded.trigger_type,
			target_progress = excluded.target_progress,
			reward_type = excluded.reward_type,
			reward_amount = excluded.reward_amount,
			is_active = excluded.is_active`,
		q.ID, q.Title, q.Description, string(q.Type), string(q.TriggerType),
		q.TargetProgress, string(q.RewardType), q.RewardAmount, q.IsActive,
	)
	if err != nil {
		return wrapErr("upsert quest", err)
	}
	return nil
}

const questColumns = `id, title, description, type, trigger_type, target_progress, reward_type, reward_amount, is_active`

// GetQuest retrieves a quest by ID.
func (d *DB) GetQuest(ctx context.Context, id string) (domain.Quest, error) {
	q, err := getQuest(ctx, d.db, id)
	if err != nil {
		return q, wrapErr("get quest", err)
	}
	return q, nil
}

func getQuest(ctx context.Context, qr querier, id string) (domain.Quest, error) {
	row := qr.QueryRowContext(ctx, `SELECT `+questColumns+` FROM quests WHERE id = ?`, id)
	q, err := scanQuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return q, domain.ErrQuestNotFound
	}
	return q, err
}

// ListQuests returns quest definitions ordered daily first.
func (d *DB) ListQuests(ctx context.Context, activeOnly bool) ([]domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY type ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query)
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
	if err != nil {
		return q, err
	}
	q.Type = domain.QuestType(typ)
	q.TriggerType = domain.TriggerType(trigger)
	q.RewardType = domain.RewardType(reward)
	return q, nil
}

// ─── Quest Progress ─────────────────────────────────────────────────────────

// EnsureProgress returns the period's progress row, creating it at zero.
func (d *DB) EnsureProgress(ctx context.Context, userID, questID string, period domain.Date) (domain.QuestProgress, error) {
	var p domain.QuestProgress
	err := d.withTx(ctx, "ensure progress", func(tx *sql.Tx) error {
		var err error
		p, err = ensureProgress(ctx, tx, userID, questID, period)
		return err
	})
	return p, err
}

func ensureProgress(ctx context.Context, q querier, userID, questID string, period domain.Date) (domain.QuestProgress, error) {
	if _, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_quest_progress (id, user_id, quest_id, period_start_date, current_progress, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		uuid.NewString(), userID, questID, period.String(), time.Now().Unix(),
	); err != nil {
		return domain.QuestProgress{}, err
	}
	row := q.QueryRowContext(ctx,
		`SELECT id, user_id, quest_id, period_start_date, current_progress, claimed_at, updated_at
		 FROM user_quest_progress WHERE user_id = ? AND quest_id = ? AND period_start_date = ?`,
		userID, questID, period.String(),
	)
	return scanProgress(row)
}

// AdvanceProgress raises the period's progress toward observed.
func (d *DB) AdvanceProgress(ctx context.Context, q domain.Quest, userID string, period domain.Date, observed int) (domain.QuestProgress, error) {
	var p domain.QuestProgress
	err := d.withTx(ctx, "advance progress", func(tx *sql.Tx) error {
		var err error
		p, err = ensureProgress(ctx, tx, userID, q.ID, period)
		if err != nil {
			return err
		}
		if !domain.Advance(q, &p, observed) {
			return nil
		}
		p.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`UPDATE user_quest_progress SET current_progress = ?, updated_at = ?
			 WHERE id = ? AND claimed_at IS NULL AND current_progress < ?`,
			p.CurrentProgress, p.UpdatedAt.Unix(), p.ID, p.CurrentProgress,
		)
		return err
	})
	return p, err
}

// ClaimQuest marks the period claimed and credits the ledger in one transaction.
func (d *DB) ClaimQuest(ctx context.Context, q domain.Quest, userID string, period domain.Date, now time.Time) (domain.QuestProgress, domain.RewardLedger, error) {
	var (
		p domain.QuestProgress
		l domain.RewardLedger
	)
	err := d.withTx(ctx, "claim quest", func(tx *sql.Tx) error {
		var err error
		p, err = ensureProgress(ctx, tx, userID, q.ID, period)
		if err != nil {
			return err
		}
		grant, err := domain.ApplyClaim(q, &p, now)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE user_quest_progress SET claimed_at = ?, updated_at = ?
			 WHERE id = ? AND claimed_at IS NULL`,
			nullableUnix(p.ClaimedAt), now.Unix(), p.ID,
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

// CountClaimed counts claimed periods of quests of type t within [from, to].
func (d *DB) CountClaimed(ctx context.Context, userID string, t domain.QuestType, from, to domain.Date) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_quest_progress p
		 JOIN quests q ON q.id = p.quest_id
		 WHERE p.user_id = ? AND q.type = ? AND p.claimed_at IS NOT NULL
		   AND p.period_start_date BETWEEN ? AND ?`,
		userID, string(t), from.String(), to.String(),
	).Scan(&n)
	if err != nil {
		return 0, wrapErr("count claimed", err)
	}
	return n, nil
}

func scanProgress(s scanner) (domain.QuestProgress, error) {
	var p domain.QuestProgress
	var period string
	var claimed sql.NullInt64
	var updated int64
	err := s.Scan(&p.ID, &p.UserID, &p.QuestID, &period, &p.CurrentProgress, &claimed, &updated)
	if err != nil {
		return p, err
	}
	if p.PeriodStart, err = parseDate(period); err != nil {
		return p, err
	}
	if claimed.Valid {
		t := unixTime(claimed.Int64)
		p.ClaimedAt = &t
	}
	p.UpdatedAt = unixTime(updated)
	return p, nil
}
