// Package firestore is the Cloud Firestore storage backend. Mutations run
// inside RunTransaction, which retries on contention; claim guards are
// re-evaluated on every attempt so a reward is granted at most once.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/habitnest/habitnest/internal/domain"
)

// Store is a domain.Store backed by Firestore.
//
// Layout:
//
//	quests/{quest}
//	ledgers/{user}
//	ledgers/{user}/grants/{grant}
//	users/{user}/goals/{habit}
//	users/{user}/habit_logs/{habit_date_task}
//	users/{user}/quest_progress/{quest_period}
type Store struct {
	client *firestore.Client
}

var _ domain.Store = (*Store)(nil)

// Open creates a client for projectID. FIRESTORE_EMULATOR_HOST is honoured
// by the client library.
func Open(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("firestore: project id is empty")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	iter := s.client.Collection("quests").Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return wrapErr("ping", err)
	}
	return nil
}

func (s *Store) user(userID string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(userID)
}

func (s *Store) ledgerRef(userID string) *firestore.DocumentRef {
	return s.client.Collection("ledgers").Doc(userID)
}

func wrapErr(op string, err error) error {
	if errors.Is(err, domain.ErrTransientStore) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch status.Code(err) {
	case codes.Aborted, codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return domain.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ─── Habit Goals ────────────────────────────────────────────────────────────

type goalDoc struct {
	UserID        string    `firestore:"user_id"`
	Habit         string    `firestore:"habit"`
	WaterGoal     float64   `firestore:"water_goal"`
	CupSize       float64   `firestore:"cup_size"`
	CaloriesGoal  float64   `firestore:"calories_goal"`
	FocusGoal     float64   `firestore:"focus_goal"`
	SleepTime     string    `firestore:"sleep_time"`
	WakeupTime    string    `firestore:"wakeup_time"`
	ReminderTimes []string  `firestore:"reminder_times"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

func (d goalDoc) toDomain() domain.HabitGoal {
	return domain.HabitGoal{
		UserID: d.UserID, Habit: domain.HabitType(d.Habit),
		WaterGoal: d.WaterGoal, CupSize: d.CupSize, CaloriesGoal: d.CaloriesGoal, FocusGoal: d.FocusGoal,
		SleepTime: d.SleepTime, WakeupTime: d.WakeupTime, ReminderTimes: d.ReminderTimes,
		UpdatedAt: d.UpdatedAt,
	}
}

func (s *Store) UpsertGoal(ctx context.Context, g domain.HabitGoal) error {
	_, err := s.user(g.UserID).Collection("goals").Doc(string(g.Habit)).Set(ctx, goalDoc{
		UserID: g.UserID, Habit: string(g.Habit),
		WaterGoal: g.WaterGoal, CupSize: g.CupSize, CaloriesGoal: g.CaloriesGoal, FocusGoal: g.FocusGoal,
		SleepTime: g.SleepTime, WakeupTime: g.WakeupTime, ReminderTimes: g.ReminderTimes,
		UpdatedAt: g.UpdatedAt,
	})
	if err != nil {
		return wrapErr("upsert goal", err)
	}
	return nil
}

func (s *Store) GetGoal(ctx context.Context, userID string, h domain.HabitType) (domain.HabitGoal, error) {
	snap, err := s.user(userID).Collection("goals").Doc(string(h)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return domain.HabitGoal{}, domain.ErrGoalNotFound
	}
	if err != nil {
		return domain.HabitGoal{}, wrapErr("get goal", err)
	}
	var d goalDoc
	if err := snap.DataTo(&d); err != nil {
		return domain.HabitGoal{}, fmt.Errorf("decode goal: %w", err)
	}
	return d.toDomain(), nil
}

func (s *Store) ListGoals(ctx context.Context) ([]domain.HabitGoal, error) {
	iter := s.client.CollectionGroup("goals").Documents(ctx)
	defer iter.Stop()

	var goals []domain.HabitGoal
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapErr("list goals", err)
		}
		var d goalDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode goal: %w", err)
		}
		goals = append(goals, d.toDomain())
	}
	return goals, nil
}

// ─── Habit Logs ─────────────────────────────────────────────────────────────

type dishDoc struct {
	Name     string  `firestore:"name"`
	Calories float64 `firestore:"calories"`
}

type logDoc struct {
	UserID        string    `firestore:"user_id"`
	Habit         string    `firestore:"habit"`
	Date          string    `firestore:"date"`
	Task          string    `firestore:"task"`
	Goal          float64   `firestore:"goal"`
	CupSize       float64   `firestore:"cup_size"`
	Consumed      float64   `firestore:"consumed"`
	Completed     bool      `firestore:"completed"`
	Dishes        []dishDoc `firestore:"dishes"`
	ScheduledTime string    `firestore:"scheduled_time"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

func toLogDoc(l domain.HabitLog) logDoc {
	d := logDoc{
		UserID: l.UserID, Habit: string(l.Habit), Date: l.Date.String(), Task: l.Task,
		Goal: l.Goal, CupSize: l.CupSize, Consumed: l.Consumed, Completed: l.Completed,
		ScheduledTime: l.ScheduledTime, UpdatedAt: l.UpdatedAt,
	}
	for _, dish := range l.Dishes {
		d.Dishes = append(d.Dishes, dishDoc{Name: dish.Name, Calories: dish.Calories})
	}
	return d
}

func fromLogDoc(id string, d logDoc) (domain.HabitLog, error) {
	date, err := domain.ParseDate(d.Date)
	if err != nil {
		return domain.HabitLog{}, err
	}
	l := domain.HabitLog{
		ID: id, UserID: d.UserID, Habit: domain.HabitType(d.Habit), Date: date, Task: d.Task,
		Goal: d.Goal, CupSize: d.CupSize, Consumed: d.Consumed, Completed: d.Completed,
		ScheduledTime: d.ScheduledTime, UpdatedAt: d.UpdatedAt,
	}
	for _, dish := range d.Dishes {
		l.Dishes = append(l.Dishes, domain.Dish{Name: dish.Name, Calories: dish.Calories})
	}
	return l, nil
}

// logID is deterministic so the day key is unique without an index.
func logID(l domain.HabitLog) string {
	id := string(l.Habit) + "_" + l.Date.String()
	if l.Task != "" {
		id += "_" + l.Task
	}
	return id
}

func (s *Store) logs(userID string) *firestore.CollectionRef {
	return s.user(userID).Collection("habit_logs")
}

func (s *Store) ReplaceDayLogs(ctx context.Context, userID string, h domain.HabitType, day domain.Date, logs []domain.HabitLog) error {
	q := s.logs(userID).Where("habit", "==", string(h)).Where("date", "==", day.String())
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range existing {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		for _, l := range logs {
			if err := tx.Set(s.logs(userID).Doc(logID(l)), toLogDoc(l)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapErr("replace day logs", err)
	}
	return nil
}

func (s *Store) CreateLogsIfMissing(ctx context.Context, logs []domain.HabitLog) (int, error) {
	created := 0
	for _, l := range logs {
		_, err := s.logs(l.UserID).Doc(logID(l)).Create(ctx, toLogDoc(l))
		if status.Code(err) == codes.AlreadyExists {
			continue
		}
		if err != nil {
			return created, wrapErr("create logs", err)
		}
		created++
	}
	return created, nil
}

func (s *Store) ListLogs(ctx context.Context, userID string, h domain.HabitType, from, to domain.Date) ([]domain.HabitLog, error) {
	iter := s.logs(userID).
		Where("habit", "==", string(h)).
		Where("date", ">=", from.String()).
		Where("date", "<=", to.String()).
		Documents(ctx)
	defer iter.Stop()

	var out []domain.HabitLog
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapErr("list logs", err)
		}
		var d logDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		l, err := fromLogDoc(snap.Ref.ID, d)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Task < out[j].Task
	})
	return out, nil
}

func (s *Store) UpdateLog(ctx context.Context, userID, id string, fn func(l *domain.HabitLog) error) (domain.HabitLog, error) {
	ref := s.logs(userID).Doc(id)
	var out domain.HabitLog
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return domain.ErrLogNotFound
		}
		if err != nil {
			return err
		}
		var d logDoc
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		l, err := fromLogDoc(id, d)
		if err != nil {
			return err
		}
		if err := fn(&l); err != nil {
			return err
		}
		out = l
		return tx.Set(ref, toLogDoc(l))
	})
	if err != nil {
		return domain.HabitLog{}, wrapErr("update log", err)
	}
	return out, nil
}

// ─── Reward Ledger ──────────────────────────────────────────────────────────

type ledgerDoc struct {
	Coins           int64  `firestore:"coins"`
	Diamonds        int64  `firestore:"diamonds"`
	Streak          int    `firestore:"streak"`
	DailyCheckin    int    `firestore:"daily_checkin"`
	LastCheckinDate string `firestore:"last_checkin_date"`
	LastStreakDate  string `firestore:"last_streak_date"`
	Version         int64  `firestore:"version"`
}

func decodeLedger(userID string, snap *firestore.DocumentSnapshot) (domain.RewardLedger, error) {
	var d ledgerDoc
	if err := snap.DataTo(&d); err != nil {
		return domain.RewardLedger{}, fmt.Errorf("decode ledger: %w", err)
	}
	l := domain.RewardLedger{
		UserID: userID, Coins: d.Coins, Diamonds: d.Diamonds, Streak: d.Streak,
		DailyCheckin: d.DailyCheckin, Version: d.Version,
	}
	var err error
	if l.LastCheckinDate, err = domain.ParseDate(d.LastCheckinDate); err != nil {
		return l, err
	}
	if l.LastStreakDate, err = domain.ParseDate(d.LastStreakDate); err != nil {
		return l, err
	}
	return l, nil
}

func encodeLedger(l domain.RewardLedger) ledgerDoc {
	return ledgerDoc{
		Coins: l.Coins, Diamonds: l.Diamonds, Streak: l.Streak, DailyCheckin: l.DailyCheckin,
		LastCheckinDate: l.LastCheckinDate.String(), LastStreakDate: l.LastStreakDate.String(),
		Version: l.Version,
	}
}

// readLedger must run before any write in the transaction.
func (s *Store) readLedger(tx *firestore.Transaction, userID string) (domain.RewardLedger, error) {
	snap, err := tx.Get(s.ledgerRef(userID))
	if status.Code(err) == codes.NotFound {
		return domain.NewLedger(userID), nil
	}
	if err != nil {
		return domain.RewardLedger{}, err
	}
	return decodeLedger(userID, snap)
}

// writeLedger stores l and records any non-empty grant.
func (s *Store) writeLedger(tx *firestore.Transaction, l domain.RewardLedger, g domain.RewardGrant) (domain.RewardGrant, error) {
	l.Version++
	if err := tx.Set(s.ledgerRef(l.UserID), encodeLedger(l)); err != nil {
		return g, err
	}
	if g.Empty() {
		return g, nil
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.UserID = l.UserID
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now().UTC()
	}
	err := tx.Create(s.ledgerRef(l.UserID).Collection("grants").Doc(g.ID), grantDoc{
		Source: string(g.Source), Ref: g.Ref, Coins: g.Coins, Diamonds: g.Diamonds, GrantedAt: g.GrantedAt,
	})
	return g, err
}

func (s *Store) GetLedger(ctx context.Context, userID string) (domain.RewardLedger, error) {
	snap, err := s.ledgerRef(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return domain.NewLedger(userID), nil
	}
	if err != nil {
		return domain.RewardLedger{}, wrapErr("get ledger", err)
	}
	return decodeLedger(userID, snap)
}

func (s *Store) UpdateLedger(ctx context.Context, userID string, fn domain.LedgerMutation) (domain.RewardLedger, domain.RewardGrant, error) {
	var (
		out   domain.RewardLedger
		grant domain.RewardGrant
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		l, err := s.readLedger(tx, userID)
		if err != nil {
			return err
		}
		g, err := fn(&l)
		if err != nil {
			return err
		}
		if grant, err = s.writeLedger(tx, l, g); err != nil {
			return err
		}
		l.Version++
		out = l
		return nil
	})
	if err != nil {
		return domain.RewardLedger{}, domain.RewardGrant{}, wrapErr("update ledger", err)
	}
	return out, grant, nil
}

type grantDoc struct {
	Source    string    `firestore:"source"`
	Ref       string    `firestore:"ref"`
	Coins     int64     `firestore:"coins"`
	Diamonds  int64     `firestore:"diamonds"`
	GrantedAt time.Time `firestore:"granted_at"`
}

func (s *Store) ListGrants(ctx context.Context, userID string, limit int) ([]domain.RewardGrant, error) {
	iter := s.ledgerRef(userID).Collection("grants").
		OrderBy("granted_at", firestore.Desc).Limit(limit).Documents(ctx)
	defer iter.Stop()

	var grants []domain.RewardGrant
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapErr("list grants", err)
		}
		var d grantDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode grant: %w", err)
		}
		grants = append(grants, domain.RewardGrant{
			ID: snap.Ref.ID, UserID: userID, Source: domain.GrantSource(d.Source), Ref: d.Ref,
			Coins: d.Coins, Diamonds: d.Diamonds, GrantedAt: d.GrantedAt,
		})
	}
	return grants, nil
}
