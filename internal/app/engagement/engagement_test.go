package engagement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/habitnest/habitnest/internal/app/engagement"
	"github.com/habitnest/habitnest/internal/domain"
	"github.com/habitnest/habitnest/internal/infra/sqlite"
)

func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seededQuests(t *testing.T, db *sqlite.DB) *engagement.QuestService {
	t.Helper()
	qs := engagement.NewQuestService(db)
	if _, err := qs.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	return qs
}

var day1 = domain.MustParseDate("2024-05-06")

// ═══════════════════════════════════════════════════════════════════════════
// Streak Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestStreak_FirstActivity(t *testing.T) {
	ss := engagement.NewStreakService(testDB(t))
	ctx := context.Background()

	if err := ss.Touch(ctx, "u1", day1); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	n, err := ss.Current(ctx, "u1", day1)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if n != 1 {
		t.Errorf("streak = %d, want 1", n)
	}
}

func TestStreak_ConsecutiveDays(t *testing.T) {
	ss := engagement.NewStreakService(testDB(t))
	ctx := context.Background()

	for i := range 5 {
		if err := ss.Touch(ctx, "u1", day1.AddDays(i)); err != nil {
			t.Fatalf("Touch day %d: %v", i, err)
		}
		// repeated activity on the same day is a no-op
		if err := ss.Touch(ctx, "u1", day1.AddDays(i)); err != nil {
			t.Fatalf("Touch again day %d: %v", i, err)
		}
	}
	n, _ := ss.Current(ctx, "u1", day1.AddDays(4))
	if n != 5 {
		t.Errorf("streak = %d, want 5", n)
	}
}

func TestStreak_BreaksAfterMissedDay(t *testing.T) {
	ss := engagement.NewStreakService(testDB(t))
	ctx := context.Background()

	ss.Touch(ctx, "u1", day1)
	ss.Touch(ctx, "u1", day1.AddDays(1))

	if n, _ := ss.Current(ctx, "u1", day1.AddDays(3)); n != 0 {
		t.Errorf("streak after gap = %d, want 0", n)
	}
	ss.Touch(ctx, "u1", day1.AddDays(3))
	if n, _ := ss.Current(ctx, "u1", day1.AddDays(3)); n != 1 {
		t.Errorf("streak after restart = %d, want 1", n)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Check-in Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestCheckin_NewUserCalendar(t *testing.T) {
	cs := engagement.NewCheckinService(testDB(t), nil)

	st, err := cs.Calendar(context.Background(), "u1", day1)
	if err != nil {
		t.Fatalf("Calendar: %v", err)
	}
	if st.Calendar.CurrentDayIndex != 0 || st.Calendar.IsCheckedInToday {
		t.Errorf("calendar = %+v", st.Calendar)
	}
	if !st.Calendar.Days[0].IsClaimable {
		t.Error("day 0 should be claimable for a new user")
	}
}

func TestCheckin_ClaimAndRepeat(t *testing.T) {
	cs := engagement.NewCheckinService(testDB(t), nil)
	ctx := context.Background()

	res, err := cs.CheckIn(ctx, "u1", day1)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if res.Grant.Coins != 10 || res.Ledger.Coins != 10 {
		t.Errorf("grant = %+v, ledger coins = %d", res.Grant, res.Ledger.Coins)
	}
	if !res.Calendar.IsCheckedInToday || !res.Calendar.Days[0].IsClaimed {
		t.Errorf("calendar after check-in = %+v", res.Calendar)
	}

	_, err = cs.CheckIn(ctx, "u1", day1)
	if !errors.Is(err, domain.ErrAlreadyCheckedIn) {
		t.Fatalf("second CheckIn err = %v, want ErrAlreadyCheckedIn", err)
	}
	st, _ := cs.Calendar(ctx, "u1", day1)
	if st.Ledger.Coins != 10 {
		t.Errorf("coins after rejected check-in = %d, want 10", st.Ledger.Coins)
	}
}

func TestCheckin_FullWeek(t *testing.T) {
	cs := engagement.NewCheckinService(testDB(t), nil)
	ctx := context.Background()

	var last engagement.CheckinResult
	for i := range 7 {
		res, err := cs.CheckIn(ctx, "u1", day1.AddDays(i))
		if err != nil {
			t.Fatalf("CheckIn day %d: %v", i, err)
		}
		last = res
	}
	if last.Grant.Coins != 100 || last.Grant.Diamonds != 1 {
		t.Errorf("day 7 grant = %+v, want 100 coins + 1 diamond", last.Grant)
	}
	if last.Ledger.Coins != 160 || last.Ledger.Diamonds != 1 {
		t.Errorf("ledger = %d coins %d diamonds, want 160/1", last.Ledger.Coins, last.Ledger.Diamonds)
	}

	// the cycle wraps to slot 0 on day 8
	res, err := cs.CheckIn(ctx, "u1", day1.AddDays(7))
	if err != nil {
		t.Fatalf("CheckIn day 8: %v", err)
	}
	if res.Ledger.DailyCheckin != 0 {
		t.Errorf("slot on day 8 = %d, want 0", res.Ledger.DailyCheckin)
	}
}

func TestCheckin_MissedDayResets(t *testing.T) {
	cs := engagement.NewCheckinService(testDB(t), nil)
	ctx := context.Background()

	cs.CheckIn(ctx, "u1", day1)
	cs.CheckIn(ctx, "u1", day1.AddDays(1))

	st, _ := cs.Calendar(ctx, "u1", day1.AddDays(3))
	if st.Calendar.CurrentDayIndex != 0 {
		t.Errorf("index after missed day = %d, want 0", st.Calendar.CurrentDayIndex)
	}
	res, err := cs.CheckIn(ctx, "u1", day1.AddDays(3))
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if res.Ledger.DailyCheckin != 0 {
		t.Errorf("slot = %d, want 0", res.Ledger.DailyCheckin)
	}
}

func TestCheckin_ReportsLapsedStreak(t *testing.T) {
	db := testDB(t)
	ss := engagement.NewStreakService(db)
	cs := engagement.NewCheckinService(db, nil)
	ctx := context.Background()

	ss.Touch(ctx, "u1", day1)
	ss.Touch(ctx, "u1", day1.AddDays(1))

	res, err := cs.CheckIn(ctx, "u1", day1.AddDays(1))
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if res.Ledger.Streak != 2 {
		t.Errorf("streak = %d, want 2", res.Ledger.Streak)
	}

	res, err = cs.CheckIn(ctx, "u1", day1.AddDays(4))
	if err != nil {
		t.Fatalf("CheckIn after gap: %v", err)
	}
	if res.Ledger.Streak != 0 {
		t.Errorf("streak after missed days = %d, want 0", res.Ledger.Streak)
	}
	st, _ := cs.Calendar(ctx, "u1", day1.AddDays(4))
	if st.Ledger.Streak != 0 {
		t.Errorf("calendar streak = %d, want 0", st.Ledger.Streak)
	}
}

func TestCheckin_ConcurrentOnlyOnce(t *testing.T) {
	cs := engagement.NewCheckinService(testDB(t), nil)
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cs.CheckIn(ctx, "u1", day1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 1 {
		t.Errorf("successful check-ins = %d, want 1", ok)
	}
	st, _ := cs.Calendar(ctx, "u1", day1)
	if st.Ledger.Coins != 10 {
		t.Errorf("coins = %d, want 10", st.Ledger.Coins)
	}
}

func TestCheckin_AdvancesCheckinQuest(t *testing.T) {
	db := testDB(t)
	qs := seededQuests(t, db)
	cs := engagement.NewCheckinService(db, qs)
	ctx := context.Background()

	if _, err := cs.CheckIn(ctx, "u1", day1); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	views, err := qs.List(ctx, "u1", day1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, v := range views {
		if v.Quest.ID == "daily-checkin" && !v.IsClaimable {
			t.Errorf("daily-checkin view = %+v, want claimable", v)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Quest Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestQuest_SeedDefaultsOnce(t *testing.T) {
	db := testDB(t)
	qs := engagement.NewQuestService(db)
	ctx := context.Background()

	n, err := qs.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	if n != len(domain.DefaultQuests) {
		t.Errorf("seeded %d, want %d", n, len(domain.DefaultQuests))
	}
	n, _ = qs.SeedDefaults(ctx)
	if n != 0 {
		t.Errorf("second seed inserted %d", n)
	}
}

func TestQuest_ImportRejectsInvalid(t *testing.T) {
	db := testDB(t)
	qs := engagement.NewQuestService(db)
	ctx := context.Background()

	bad := []domain.Quest{
		{ID: "ok", Title: "OK", Type: domain.QuestDaily, TriggerType: domain.TriggerCheckin, TargetProgress: 1, RewardType: domain.RewardCoins, RewardAmount: 1, IsActive: true},
		{ID: "bad", Title: "Bad", Type: domain.QuestDaily, TriggerType: domain.TriggerCheckin, TargetProgress: 0, RewardType: domain.RewardCoins, RewardAmount: 1},
	}
	_, err := qs.Import(ctx, bad)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Import err = %v, want ErrValidation", err)
	}
	all, _ := db.ListQuests(ctx, false)
	if len(all) != 0 {
		t.Errorf("invalid import wrote %d quests", len(all))
	}
}

func TestQuest_ImportRejectsDuplicateIDs(t *testing.T) {
	qs := engagement.NewQuestService(testDB(t))
	q := domain.Quest{ID: "dup", Title: "Dup", Type: domain.QuestDaily, TriggerType: domain.TriggerCheckin, TargetProgress: 1, RewardType: domain.RewardCoins, RewardAmount: 1}

	if _, err := qs.Import(context.Background(), []domain.Quest{q, q}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Import err = %v, want ErrValidation", err)
	}
}

func TestQuest_ListPending(t *testing.T) {
	db := testDB(t)
	qs := seededQuests(t, db)

	views, err := qs.List(context.Background(), "u1", day1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(views) != len(domain.DefaultQuests) {
		t.Fatalf("len(views) = %d", len(views))
	}
	for _, v := range views {
		if v.Status != domain.StatusPending || v.Progress.CurrentProgress != 0 {
			t.Errorf("%s: status %s progress %d", v.Quest.ID, v.Status, v.Progress.CurrentProgress)
		}
		want := v.Quest.PeriodStart(day1)
		if v.Progress.PeriodStart != want {
			t.Errorf("%s: period %s, want %s", v.Quest.ID, v.Progress.PeriodStart, want)
		}
	}
}

type staticTotals map[domain.TriggerType]int

func (s staticTotals) DayTotals(context.Context, string, domain.Date) (map[domain.TriggerType]int, error) {
	return s, nil
}

func TestQuest_ListRecomputesFromActivity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// checked in before quests were tracked
	cs := engagement.NewCheckinService(db, nil)
	if _, err := cs.CheckIn(ctx, "u1", day1); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	qs := seededQuests(t, db)
	qs.SetActivity(cs, staticTotals{domain.TriggerFocusTime: 30, domain.TriggerHydrateGoal: 500})

	views, err := qs.List(ctx, "u1", day1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := map[string]domain.QuestView{}
	for _, v := range views {
		got[v.Quest.ID] = v
	}
	if v := got["daily-checkin"]; v.Status != domain.StatusCompleted {
		t.Errorf("daily-checkin status = %s, want completed", v.Status)
	}
	if v := got["daily-focus"]; v.Progress.CurrentProgress != 25 || !v.IsClaimable {
		t.Errorf("daily-focus = %+v", v.Progress)
	}
	if v := got["daily-hydrate"]; v.Progress.CurrentProgress != 500 || v.Status != domain.StatusPending {
		t.Errorf("daily-hydrate = %+v", v.Progress)
	}
	if v := got["daily-meals"]; v.Progress.CurrentProgress != 0 {
		t.Errorf("daily-meals = %+v", v.Progress)
	}

	// next day: nothing checked in yet
	views, _ = engagement.NewQuestService(db).List(ctx, "u1", day1.AddDays(1))
	for _, v := range views {
		if v.Quest.ID == "daily-checkin" && v.Status != domain.StatusPending {
			t.Errorf("next day daily-checkin status = %s", v.Status)
		}
	}
}

func TestQuest_ObserveIsMonotonicAndCapped(t *testing.T) {
	db := testDB(t)
	qs := seededQuests(t, db)
	ctx := context.Background()

	observe := func(v int) int {
		t.Helper()
		if err := qs.Observe(ctx, "u1", domain.TriggerHydrateGoal, v, day1); err != nil {
			t.Fatalf("Observe(%d): %v", v, err)
		}
		p, _ := db.EnsureProgress(ctx, "u1", "daily-hydrate", day1)
		return p.CurrentProgress
	}

	if got := observe(500); got != 500 {
		t.Errorf("progress = %d, want 500", got)
	}
	if got := observe(300); got != 500 {
		t.Errorf("progress after lower observation = %d, want 500", got)
	}
	if got := observe(4000); got != 1500 {
		t.Errorf("progress = %d, want capped 1500", got)
	}
}

func TestQuest_ObserveResetsNextDay(t *testing.T) {
	db := testDB(t)
	qs := seededQuests(t, db)
	ctx := context.Background()

	qs.Observe(ctx, "u1", domain.TriggerFocusTime, 25, day1)

	views, _ := qs.List(ctx, "u1", day1.AddDays(1))
	for _, v := range views {
		if v.Quest.ID == "daily-focus" && v.Progress.CurrentProgress != 0 {
			t.Errorf("next day focus progress = %d, want 0", v.Progress.CurrentProgress)
		}
	}
}

func TestQuest_ClaimLifecycle(t *testing.T) {
	db := testDB(t)
	qs := seededQuests(t, db)
	ctx := context.Background()
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

	_, _, err := qs.Claim(ctx, "u1", "daily-meals", day1, now)
	if !errors.Is(err, domain.ErrNotCompleted) {
		t.Fatalf("early Claim err = %v, want ErrNotCompleted", err)
	}

	qs.Observe(ctx, "u1", domain.TriggerLogMeal, 3, day1)
	v, l, err := qs.Claim(ctx, "u1", "daily-meals", day1, now)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if v.Status != domain.StatusClaimed || v.IsClaimable {
		t.Errorf("view after claim = %+v", v)
	}
	if l.Coins != 15 {
		t.Errorf("coins = %d, want 15", l.Coins)
	}

	_, _, err = qs.Claim(ctx, "u1", "daily-meals", day1, now)
	if !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("repeat Claim err = %v, want ErrAlreadyClaimed", err)
	}

	// progress stays frozen after claim
	qs.Observe(ctx, "u1", domain.TriggerLogMeal, 10, day1)
	p, _ := db.EnsureProgress(ctx, "u1", "daily-meals", day1)
	if p.CurrentProgress != 3 {
		t.Errorf("progress after claim = %d, want 3", p.CurrentProgress)
	}
}

func TestQuest_ClaimUnknownOrInactive(t *testing.T) {
	db := testDB(t)
	qs := seededQuests(t, db)
	ctx := context.Background()

	_, _, err := qs.Claim(ctx, "u1", "nope", day1, time.Now())
	if !errors.Is(err, domain.ErrQuestNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown quest err = %v", err)
	}

	q := domain.DefaultQuests[0]
	q.IsActive = false
	if err := db.UpsertQuest(ctx, q); err != nil {
		t.Fatalf("UpsertQuest: %v", err)
	}
	_, _, err = qs.Claim(ctx, "u1", q.ID, day1, time.Now())
	if !errors.Is(err, domain.ErrQuestNotFound) {
		t.Errorf("inactive quest err = %v, want ErrQuestNotFound", err)
	}
}

func TestQuest_DailyClaimsFeedMonthly(t *testing.T) {
	db := testDB(t)
	qs := seededQuests(t, db)
	ctx := context.Background()

	for i := range 2 {
		day := day1.AddDays(i)
		qs.Observe(ctx, "u1", domain.TriggerCheckin, 1, day)
		if _, _, err := qs.Claim(ctx, "u1", "daily-checkin", day, day.Time()); err != nil {
			t.Fatalf("Claim day %d: %v", i, err)
		}
	}

	p, err := db.EnsureProgress(ctx, "u1", "monthly-dedication", day1.MonthStart())
	if err != nil {
		t.Fatalf("EnsureProgress: %v", err)
	}
	if p.CurrentProgress != 2 {
		t.Errorf("monthly progress = %d, want 2", p.CurrentProgress)
	}
}

func TestQuest_ConcurrentClaimsPayOnce(t *testing.T) {
	db := testDB(t)
	qs := seededQuests(t, db)
	ctx := context.Background()
	qs.Observe(ctx, "u1", domain.TriggerFocusTime, 30, day1)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := qs.Claim(ctx, "u1", "daily-focus", day1, time.Now()); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 1 {
		t.Errorf("successful claims = %d, want 1", ok)
	}
	l, _ := db.GetLedger(ctx, "u1")
	if l.Coins != 20 {
		t.Errorf("coins = %d, want 20", l.Coins)
	}
}
