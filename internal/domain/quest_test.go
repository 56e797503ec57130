package domain

import (
	"errors"
	"testing"
	"time"
)

// ─── Quest Tests ────────────────────────────────────────────────────────────

var hydrateQuest = Quest{
	ID: "daily-hydrate", Type: QuestDaily, TriggerType: TriggerHydrateGoal,
	TargetProgress: 1500, RewardType: RewardCoins, RewardAmount: 20, IsActive: true,
}

func TestQuestDerivation(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name          string
		progress      int
		claimed       bool
		wantCompleted bool
		wantClaimable bool
		wantStatus    QuestStatus
	}{
		{"pending", 750, false, false, false, StatusPending},
		{"completed", 1500, false, true, true, StatusCompleted},
		{"claimed", 1500, true, true, false, StatusClaimed},
		{"zero", 0, false, false, false, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := QuestProgress{CurrentProgress: tt.progress}
			if tt.claimed {
				p.ClaimedAt = &now
			}
			if got := IsCompleted(hydrateQuest, p); got != tt.wantCompleted {
				t.Errorf("IsCompleted = %v, want %v", got, tt.wantCompleted)
			}
			if got := IsClaimable(hydrateQuest, p); got != tt.wantClaimable {
				t.Errorf("IsClaimable = %v, want %v", got, tt.wantClaimable)
			}
			if got := Status(hydrateQuest, p); got != tt.wantStatus {
				t.Errorf("Status = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestApplyClaim(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	p := QuestProgress{UserID: "u1", QuestID: hydrateQuest.ID, PeriodStart: DateOf(now), CurrentProgress: 750}

	if _, err := ApplyClaim(hydrateQuest, &p, now); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("claim at 750/1500 err = %v, want ErrNotCompleted", err)
	}
	if p.ClaimedAt != nil {
		t.Fatal("rejected claim must not set claimed_at")
	}

	p.CurrentProgress = 1500
	g, err := ApplyClaim(hydrateQuest, &p, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if g.Coins != 20 || g.Diamonds != 0 || g.Source != GrantQuest {
		t.Errorf("grant = %+v", g)
	}
	if p.ClaimedAt == nil || !p.ClaimedAt.Equal(now) {
		t.Errorf("ClaimedAt = %v, want %v", p.ClaimedAt, now)
	}

	if _, err := ApplyClaim(hydrateQuest, &p, now.Add(time.Minute)); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
	if !p.ClaimedAt.Equal(now) {
		t.Error("claimed_at must not change on a second claim")
	}
}

func TestApplyClaim_Diamonds(t *testing.T) {
	q := Quest{ID: "m", Type: QuestMonthly, TargetProgress: 1, RewardType: RewardDiamonds, RewardAmount: 5}
	p := QuestProgress{CurrentProgress: 1}
	g, err := ApplyClaim(q, &p, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if g.Diamonds != 5 || g.Coins != 0 {
		t.Errorf("grant = %+v, want 5 diamonds", g)
	}
}

func TestAdvance(t *testing.T) {
	p := QuestProgress{}
	if !Advance(hydrateQuest, &p, 750) || p.CurrentProgress != 750 {
		t.Fatalf("advance to 750: %+v", p)
	}
	if Advance(hydrateQuest, &p, 500) || p.CurrentProgress != 750 {
		t.Errorf("progress decreased: %+v", p)
	}
	if !Advance(hydrateQuest, &p, 4000) || p.CurrentProgress != 1500 {
		t.Errorf("progress should cap at target: %+v", p)
	}

	now := time.Now()
	p.ClaimedAt = &now
	p.CurrentProgress = 1
	if Advance(hydrateQuest, &p, 1500) {
		t.Error("claimed progress must not advance")
	}
}

func TestQuest_PeriodStart(t *testing.T) {
	today := MustParseDate("2024-05-17")
	if got := hydrateQuest.PeriodStart(today); got != today {
		t.Errorf("daily period = %s", got)
	}
	monthly := Quest{Type: QuestMonthly}
	if got := monthly.PeriodStart(today); got != MustParseDate("2024-05-01") {
		t.Errorf("monthly period = %s", got)
	}
}

func TestNewQuestView(t *testing.T) {
	v := NewQuestView(hydrateQuest, QuestProgress{CurrentProgress: 750})
	if v.Percent != 50 || v.IsClaimable || v.Status != StatusPending {
		t.Errorf("view = %+v", v)
	}
}

// ─── Date Tests ─────────────────────────────────────────────────────────────

func TestDate(t *testing.T) {
	d := MustParseDate("2024-02-28")
	if got := d.AddDays(2).String(); got != "2024-03-01" {
		t.Errorf("AddDays(2) = %s", got)
	}
	if got := MustParseDate("2024-03-01").DaysSince(d); got != 2 {
		t.Errorf("DaysSince = %d, want 2", got)
	}
	if got := d.DaysSince(MustParseDate("2024-03-01")); got != -2 {
		t.Errorf("reverse DaysSince = %d, want -2", got)
	}
	// 2024-05-16 is a Thursday
	if got := MustParseDate("2024-05-16").WeekStart().String(); got != "2024-05-13" {
		t.Errorf("WeekStart = %s", got)
	}
	if got := MustParseDate("2024-05-13").WeekStart().String(); got != "2024-05-13" {
		t.Errorf("WeekStart of a Monday = %s", got)
	}
}

func TestToday_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	now := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	if got := Today(now, loc).String(); got != "2024-05-11" {
		t.Errorf("Today in UTC+7 = %s, want 2024-05-11", got)
	}
}

func TestValidationError_Is(t *testing.T) {
	err := NewValidationError("water_goal", "must be greater than 0")
	if !errors.Is(err, ErrValidation) {
		t.Error("ValidationError should match ErrValidation")
	}
	if !errors.Is(ErrQuestNotFound, ErrNotFound) {
		t.Error("ErrQuestNotFound should match ErrNotFound")
	}
}
