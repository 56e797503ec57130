package firestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/habitnest/habitnest/internal/domain"
)

func TestWrapErr_ClassifiesTransientCodes(t *testing.T) {
	tests := []struct {
		code      codes.Code
		transient bool
	}{
		{codes.Aborted, true},
		{codes.Unavailable, true},
		{codes.DeadlineExceeded, true},
		{codes.NotFound, false},
		{codes.PermissionDenied, false},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := wrapErr("op", status.Error(tt.code, "boom"))
			if got := errors.Is(err, domain.ErrTransientStore); got != tt.transient {
				t.Errorf("transient = %v, want %v", got, tt.transient)
			}
		})
	}
}

func TestLogID_Deterministic(t *testing.T) {
	l := domain.HabitLog{Habit: domain.HabitSleep, Date: domain.MustParseDate("2024-05-10"), Task: domain.TaskWakeup}
	if got := logID(l); got != "sleep_2024-05-10_wakeup" {
		t.Errorf("logID = %q", got)
	}
	l = domain.HabitLog{Habit: domain.HabitHydrate, Date: domain.MustParseDate("2024-05-10")}
	if got := logID(l); got != "hydrate_2024-05-10" {
		t.Errorf("logID = %q", got)
	}
}

// TestStore_Emulator runs against the Firestore emulator when
// FIRESTORE_EMULATOR_HOST is set.
func TestStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set, skipping Firestore emulator test")
	}
	ctx := context.Background()
	s, err := Open(ctx, "habitnest-test")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()

	user := "it-" + uuid.NewString()
	today := domain.Today(time.Now(), time.UTC)
	q := domain.Quest{
		ID: "it-" + uuid.NewString(), Title: "emulator", Type: domain.QuestDaily,
		TriggerType: domain.TriggerCheckin, TargetProgress: 1,
		RewardType: domain.RewardCoins, RewardAmount: 7, IsActive: true,
	}
	if err := s.UpsertQuest(ctx, q); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.ClaimQuest(ctx, q, user, today, time.Now()); !errors.Is(err, domain.ErrNotCompleted) {
		t.Fatalf("early claim err = %v, want ErrNotCompleted", err)
	}
	if _, err := s.AdvanceProgress(ctx, q, user, today, 1); err != nil {
		t.Fatal(err)
	}
	_, l, err := s.ClaimQuest(ctx, q, user, today, time.Now())
	if err != nil {
		t.Fatalf("ClaimQuest() error: %v", err)
	}
	if l.Coins != 7 {
		t.Errorf("coins = %d, want 7", l.Coins)
	}
	if _, _, err := s.ClaimQuest(ctx, q, user, today, time.Now()); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("second claim err = %v, want ErrAlreadyClaimed", err)
	}

	l, _, err = s.UpdateLedger(ctx, user, func(l *domain.RewardLedger) (domain.RewardGrant, error) {
		return domain.ApplyCheckin(l, today)
	})
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if l.Coins != 17 {
		t.Errorf("coins after check-in = %d, want 17", l.Coins)
	}
}
