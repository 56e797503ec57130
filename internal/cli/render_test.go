package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/habitnest/habitnest/internal/domain"
)

func TestRenderBar(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, "[....................]   0%"},
		{-5, "[....................]   0%"},
		{50, "[=========>..........]  50%"},
		{100, "[====================] 100%"},
		{250, "[====================] 100%"},
	}
	for _, tt := range tests {
		if got := renderBar(tt.pct); got != tt.want {
			t.Errorf("renderBar(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestRenderCalendar(t *testing.T) {
	today := domain.Date{Year: 2024, Month: 5, Day: 8}
	l := domain.RewardLedger{DailyCheckin: 1, LastCheckinDate: today.AddDays(-1)}
	cal := domain.DeriveCalendar(l, today)

	var buf bytes.Buffer
	renderCalendar(&buf, cal)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[0]), "[x] [x] [>] [ ]") {
		t.Errorf("cells = %q", lines[0])
	}
	if !strings.Contains(lines[1], "1d") {
		t.Errorf("rewards row missing weekly bonus: %q", lines[1])
	}
}
