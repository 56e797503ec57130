package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/habitnest/habitnest/internal/domain"
)

// TestStore_Integration runs the claim transactions against a real database.
// Set HABITNEST_POSTGRES_TEST_URL to run it, e.g.
// HABITNEST_POSTGRES_TEST_URL="postgres://habitnest@localhost:5432/habitnest_test?sslmode=disable"
func TestStore_Integration(t *testing.T) {
	connStr := os.Getenv("HABITNEST_POSTGRES_TEST_URL")
	if connStr == "" {
		t.Skip("HABITNEST_POSTGRES_TEST_URL not set, skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	store, err := Open(ctx, connStr)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	// Unique ids keep reruns against the same database independent.
	user := "it-" + uuid.NewString()
	today := domain.Today(time.Now(), time.UTC)
	quest := domain.Quest{
		ID: "it-" + uuid.NewString(), Title: "integration", Type: domain.QuestDaily,
		TriggerType: domain.TriggerCheckin, TargetProgress: 1,
		RewardType: domain.RewardDiamonds, RewardAmount: 2, IsActive: true,
	}

	t.Run("Checkin", func(t *testing.T) {
		checkin := func(l *domain.RewardLedger) (domain.RewardGrant, error) {
			return domain.ApplyCheckin(l, today)
		}
		l, _, err := store.UpdateLedger(ctx, user, checkin)
		if err != nil {
			t.Fatalf("UpdateLedger() error: %v", err)
		}
		if l.Coins != 10 {
			t.Errorf("coins = %d, want 10", l.Coins)
		}
		if _, _, err := store.UpdateLedger(ctx, user, checkin); !errors.Is(err, domain.ErrAlreadyCheckedIn) {
			t.Errorf("second check-in err = %v", err)
		}
	})

	t.Run("ClaimExactlyOnce", func(t *testing.T) {
		if err := store.UpsertQuest(ctx, quest); err != nil {
			t.Fatal(err)
		}
		if _, err := store.AdvanceProgress(ctx, quest, user, today, 1); err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := store.ClaimQuest(ctx, quest, user, today, time.Now())
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Errorf("successful claims = %d, want 1", wins)
		}

		l, err := store.GetLedger(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if l.Diamonds != 2 {
			t.Errorf("diamonds = %d, want 2", l.Diamonds)
		}
	})
}

func TestOpen_RejectsEmptyConnString(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Error("Open() with empty connection string should fail")
	}
}
