package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/habitnest/habitnest/internal/domain"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Shows quest progress as: [============>.......]  63%

const barWidth = 20 // Characters for the progress bar

func renderBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	filled := min(int(pct/100*float64(barWidth)), barWidth)
	empty := barWidth - filled

	var bar string
	switch {
	case filled == barWidth:
		bar = strings.Repeat("=", filled)
	case filled > 0:
		bar = strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	default:
		bar = strings.Repeat(".", barWidth)
	}
	return fmt.Sprintf("[%s] %3.0f%%", bar, pct)
}

// ─── Check-in Calendar ──────────────────────────────────────────────────────
// One cell per slot: [x] claimed, [>] claimable today, [ ] upcoming.

func renderCalendar(w io.Writer, cal domain.CheckinCalendar) {
	var cells, rewards []string
	for _, d := range cal.Days {
		mark := " "
		switch {
		case d.IsClaimed:
			mark = "x"
		case d.IsClaimable:
			mark = ">"
		}
		cells = append(cells, fmt.Sprintf("[%s]", mark))
		rewards = append(rewards, rewardLabel(d.Reward))
	}
	fmt.Fprintf(w, "  %s\n", strings.Join(cells, " "))
	fmt.Fprintf(w, "  %s\n", strings.Join(rewards, " "))
}

func rewardLabel(r domain.CheckinReward) string {
	if r.Diamonds > 0 {
		return fmt.Sprintf("%dd", r.Diamonds)
	}
	return fmt.Sprintf("%-3d", r.Coins)
}
