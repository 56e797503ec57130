package sqlite

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

var errLedgerConflict = errors.New("ledger modified concurrently")

// GetLedger returns the user's ledger, or a fresh one if none is stored.
func (d *DB) GetLedger(ctx context.Context, userID string) (domain.RewardLedger, error) {
	l, _, err := getLedger(ctx, d.db, userID)
	if err != nil {
		return l, wrapErr("get ledger", err)
	}
	return l, nil
}

// UpdateLedger runs fn against the stored ledger in one transaction.
func (d *DB) UpdateLedger(ctx context.Context, userID string, fn domain.LedgerMutation) (domain.RewardLedger, domain.RewardGrant, error) {
	var (
		l domain.RewardLedger
		g domain.RewardGrant
	)
	err := d.withTx(ctx, "update ledger", func(tx *sql.Tx) error {
		var err error
		l, g, err = mutateLedger(ctx, tx, userID, fn)
		return err
	})
	return l, g, err
}

// mutateLedger is the shared read-modify-write used by check-ins, streak
// touches and quest claims. The version guard rejects a lost update.
func mutateLedger(ctx context.Context, q querier, userID string, fn domain.LedgerMutation) (domain.RewardLedger, domain.RewardGrant, error) {
	cur, found, err := getLedger(ctx, q, userID)
	if err != nil {
		return cur, domain.RewardGrant{}, err
	}
	next := cur
	g, err := fn(&next)
	if err != nil {
		return cur, domain.RewardGrant{}, err
	}
	next.Version = cur.Version + 1

	if found {
		res, err := q.ExecContext(ctx,
			`UPDATE reward_ledgers SET coins = ?, diamonds = ?, streak = ?, daily_checkin = ?,
			        last_checkin_date = ?, last_streak_date = ?, version = ?
			 WHERE user_id = ? AND version = ?`,
			next.Coins, next.Diamonds, next.Streak, next.DailyCheckin,
			next.LastCheckinDate.String(), next.LastStreakDate.String(), next.Version,
			userID, cur.Version,
		)
		if err != nil {
			return cur, domain.RewardGrant{}, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return cur, domain.RewardGrant{}, domain.Transient("update ledger", errLedgerConflict)
		}
	} else {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO reward_ledgers (user_id, coins, diamonds, streak, daily_checkin,
			                             last_checkin_date, last_streak_date, version)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, next.Coins, next.Diamonds, next.Streak, next.DailyCheckin,
			next.LastCheckinDate.String(), next.LastStreakDate.String(), next.Version,
		); err != nil {
			return cur, domain.RewardGrant{}, err
		}
	}

	if !g.Empty() {
		g, err = insertGrant(ctx, q, userID, g)
		if err != nil {
			return cur, domain.RewardGrant{}, err
		}
	}
	return next, g, nil
}

func getLedger(ctx context.Context, q querier, userID string) (domain.RewardLedger, bool, error) {
	var l domain.RewardLedger
	var lastCheckin, lastStreak string
	err := q.QueryRowContext(ctx,
		`SELECT user_id, coins, diamonds, streak, daily_checkin, last_checkin_date, last_streak_date, version
		 FROM reward_ledgers WHERE user_id = ?`, userID,
	).Scan(&l.UserID, &l.Coins, &l.Diamonds, &l.Streak, &l.DailyCheckin, &lastCheckin, &lastStreak, &l.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewLedger(userID), false, nil
	}
	if err != nil {
		return l, false, err
	}
	if l.LastCheckinDate, err = parseDate(lastCheckin); err != nil {
		return l, false, err
	}
	if l.LastStreakDate, err = parseDate(lastStreak); err != nil {
		return l, false, err
	}
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
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, string(g.Source), g.Ref, g.Coins, g.Diamonds, g.GrantedAt.Unix(),
	)
	if err != nil {
		return g, fmt.Errorf("insert grant: %w", err)
	}
	return g, nil
}

// ListGrants returns the user's most recent grants, newest first.
func (d *DB) ListGrants(ctx context.Context, userID string, limit int) ([]domain.RewardGrant, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, source, ref, coins, diamonds, granted_at
		 FROM reward_grants WHERE user_id = ? ORDER BY granted_at DESC, rowid DESC LIMIT ?`,
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
		var ts int64
		if err := rows.Scan(&g.ID, &g.UserID, &source, &g.Ref, &g.Coins, &g.Diamonds, &ts); err != nil {
			return nil, wrapErr("list grants", err)
		}
		g.Source = domain.GrantSource(source)
		g.GrantedAt = unixTime(ts)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
