package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/habitnest/habitnest/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker_DefaultInterval(t *testing.T) {
	c := NewChecker(0)
	if c.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", c.interval, DefaultInterval)
	}
}

func TestChecker_RunOnceHealthy(t *testing.T) {
	db := newTestDB(t)
	c := NewChecker(time.Minute, StoreCheck("store", db), DirCheck("data_dir", t.TempDir()))

	c.RunOnce(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("Statuses() = %d, want 2", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() = false, want true")
	}
}

func TestChecker_ClosedStoreUnhealthy(t *testing.T) {
	db := newTestDB(t)
	c := NewChecker(time.Minute, StoreCheck("store", db))
	db.Close()

	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Error("IsHealthy() = true after store closed")
	}
	if s := c.Statuses()[0]; s.Error == "" {
		t.Error("failed status should carry an error")
	}
}

func TestChecker_RecoverRecreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	c := NewChecker(time.Minute, DirCheck("data_dir", dir))

	c.RunOnce(context.Background())
	if c.IsHealthy() {
		t.Fatal("missing dir should fail the first run")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("recovery did not create dir: %v", err)
	}

	c.RunOnce(context.Background())
	if !c.IsHealthy() {
		t.Error("second run should pass after recovery")
	}
}

func TestChecker_IsHealthyBeforeRun(t *testing.T) {
	c := NewChecker(time.Minute, Check{Name: "x", CheckFn: func(context.Context) error { return errors.New("down") }})
	if !c.IsHealthy() {
		t.Error("IsHealthy() before any run should be true")
	}
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	var runs atomic.Int32
	c := NewChecker(10*time.Millisecond, Check{Name: "count", CheckFn: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if runs.Load() < 2 {
		t.Errorf("runs = %d, want at least 2", runs.Load())
	}
}
