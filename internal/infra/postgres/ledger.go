package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/habitnest/habitnest/internal/domain"
)

// ─── Reward Ledger ──────────────────────────────────────────────────────────

func (s *Store) GetLedger(ctx context.Context, userID string) (domain.RewardLedger, error) {
	l, _, err := getLedger(ctx, s.db, userID, false)
	if err != nil {
		return l, wrapErr("get ledger", err)
	}
	return l, nil
}

func (s *Store) UpdateLedger(ctx context.Context, userID string, fn domain.LedgerMutation) (domain.RewardLedger, domain.RewardGrant, error) {
	var (
		l domain.RewardLedger
		g domain.RewardGrant
	)
	err := s.withTx(ctx, "update ledger", func(tx *sql.Tx) error {
		var err error
		l, g, err = mutateLedger(ctx, tx, userID, fn)
		return err
	})
	return l, g, err
}

// mutateLedger locks the ledger row, applies fn and writes the result.
// A missing row is inserted with ON CONFLICT so two first-time writers
// cannot both succeed.
func mutateLedger(ctx context.Context, q querier, userID string, fn domain.LedgerMutation) (domain.RewardLedger, domain.RewardGrant, error) {
	cur, found, err := getLedger(ctx, q, userID, true)
	if err != nil {
		return cur, domain.RewardGrant{}, err
	}
	next := cur
	g, err := fn(&next)
	if err != nil {
		return cur, domain.RewardGrant{}, err
	}
	next.Version = cur.Version + 1

	var res sql.Result
	if found {
		res, err = q.ExecContext(ctx,
			`UPDATE reward_ledgers SET coins = $1, diamonds = $2, streak = $3, daily_checkin = $4,
			        last_checkin_date = $5, last_streak_date = $6, version = $7
			 WHERE user_id = $8 AND version = $9`,
			next.Coins, next.Diamonds, next.Streak, next.DailyCheckin,
			next.LastCheckinDate.Time(), next.LastStreakDate.Time(), next.Version,
			userID, cur.Version,
		)
	} else {
		res, err = q.ExecContext(ctx,
			`INSERT INTO reward_ledgers (user_id, coins, diamonds, streak, daily_checkin,
			                             last_checkin_date, last_streak_date, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (user_id) DO NOTHING`,
			userID, next.Coins, next.Diamonds, next.Streak, next.DailyCheckin,
			next.LastCheckinDate.Time(), next.LastStreakDate.Time(), next.Version,
		)
	}
	if err != nil {
		return cur, domain.RewardGrant{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cur, domain.RewardGrant{}, domain.Transient("update ledger", errors.New("ledger modified concurrently"))
	}

	if !g.Empty() {
		if g, err = insertGrant(ctx, q, userID, g); err != nil {
			return cur, domain.RewardGrant{}, err
		}
	}
	return next, g, nil
}

func getLedger(ctx context.Context, q querier, userID string, forUpdate bool) (domain.RewardLedger, bool, error) {
	query := `SELECT user_id, coins, diamonds, streak, daily_checkin, last_checkin_date, last_streak_date, version
		 FROM reward_ledgers WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var l domain.RewardLedger
	var lastCheckin, lastStreak time.Time
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&l.UserID, &l.Coins, &l.Diamonds, &l.Streak, &l.DailyCheckin, &lastCheckin, &lastStreak, &l.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewLedger(userID), false, nil
	}
	if err != nil {
		return l, false, err
	}
	l.LastCheckinDate = dateOf(lastCheckin)
	l.LastStreakDate = dateOf(lastStreak)
	return l, true, nil
}

// ─── Grants ─────────────────────────────────────────────────────────────────

func insertGrant(ctx context.Context, q querier, userID string, g domain.RewardGrant) (domain.RewardGrant, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.UserID = userID
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO reward_grants (id, user_id, source, ref, coins, diamonds, granted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.UserID, string(g.Source), g.Ref, g.Coins, g.Diamonds, g.GrantedAt,
	)
	if err != nil {
		return g, fmt.Errorf("insert grant: %w", err)
	}
	return g, nil
}

func (s *Store) ListGrants(ctx context.Context, userID string, limit int) ([]domain.RewardGrant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, source, ref, coins, diamonds, granted_at
		 FROM reward_grants WHERE user_id = $1 ORDER BY granted_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, wrapErr("list grants", err)
	}
	defer rows.Close()

	var grants []domain.RewardGrant
	for rows.Next() {
		var g domain.RewardGrant
		var source string
		if err := rows.Scan(&g.ID, &g.UserID, &source, &g.Ref, &g.Coins, &g.Diamonds, &g.GrantedAt); err != nil {
			return nil, wrapErr("list grants", err)
		}
		g.Source = domain.GrantSource(source)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
