package domain

import "strconv"

// ─── Daily Check-in ─────────────────────────────────────────────────────────

// CheckinCycle is the number of slots in a check-in week.
const CheckinCycle = 7

// CheckinReward is what claiming one slot credits.
type CheckinReward struct {
	Coins    int64 `json:"coins"`
	Diamonds int64 `json:"diamonds"`
}

var checkinRewards = [CheckinCycle]CheckinReward{
	{Coins: 10}, {Coins: 10}, {Coins: 10}, {Coins: 10}, {Coins: 10}, {Coins: 10},
	{Coins: 100, Diamonds: 1}, // weekly bonus
}

// CheckinRewardFor returns the reward of slot i (taken mod CheckinCycle).
func CheckinRewardFor(i int) CheckinReward {
	return checkinRewards[((i%CheckinCycle)+CheckinCycle)%CheckinCycle]
}

// CheckinDay is one slot of the calendar.
type CheckinDay struct {
	Index       int           `json:"index"`
	IsToday     bool          `json:"is_today"`
	IsClaimed   bool          `json:"is_claimed"`
	IsClaimable bool          `json:"is_claimable"`
	Reward      CheckinReward `json:"reward"`
}

// CheckinCalendar is the derived 7-slot view of a ledger on a given day.
type CheckinCalendar struct {
	CurrentDayIndex  int                      `json:"current_day_index"`
	IsCheckedInToday bool                     `json:"is_checked_in_today"`
	Days             [CheckinCycle]CheckinDay `json:"days"`
}

// DeriveCalendar computes the check-in calendar for today.
//
// gap 0 means today is already claimed and the current slot is the stored one;
// gap 1 advances to the next slot; any longer gap restarts the cycle at slot 0.
// A negative gap (clock moved backwards) is treated as already checked in.
func DeriveCalendar(l RewardLedger, today Date) CheckinCalendar {
	gap := today.DaysSince(l.LastCheckinDate)
	cal := CheckinCalendar{IsCheckedInToday: gap <= 0}

	switch {
	case gap <= 0:
		cal.CurrentDayIndex = clampSlot(l.DailyCheckin)
	case gap == 1:
		cal.CurrentDayIndex = (clampSlot(l.DailyCheckin) + 1) % CheckinCycle
	default:
		cal.CurrentDayIndex = 0
	}

	for i := range cal.Days {
		claimed := i < cal.CurrentDayIndex
		if cal.IsCheckedInToday {
			claimed = i <= cal.CurrentDayIndex
		}
		cal.Days[i] = CheckinDay{
			Index:       i,
			IsToday:     i == cal.CurrentDayIndex,
			IsClaimed:   claimed,
			IsClaimable: i == cal.CurrentDayIndex && !cal.IsCheckedInToday,
			Reward:      checkinRewards[i],
		}
	}
	return cal
}

// ClaimedDays returns the indexes of claimed slots.
func (c CheckinCalendar) ClaimedDays() []int {
	var out []int
	for _, d := range c.Days {
		if d.IsClaimed {
			out = append(out, d.Index)
		}
	}
	return out
}

// ApplyCheckin claims today's slot on l and credits its reward.
func ApplyCheckin(l *RewardLedger, today Date) (RewardGrant, error) {
	cal := DeriveCalendar(*l, today)
	if cal.IsCheckedInToday {
		return RewardGrant{}, ErrAlreadyCheckedIn
	}
	slot := cal.CurrentDayIndex
	reward := checkinRewards[slot]
	grant := RewardGrant{
		UserID:   l.UserID,
		Source:   GrantCheckin,
		Ref:      today.String() + "#" + strconv.Itoa(slot),
		Coins:    reward.Coins,
		Diamonds: reward.Diamonds,
	}
	l.DailyCheckin = slot
	l.LastCheckinDate = today
	l.Credit(grant)
	return grant, nil
}

func clampSlot(i int) int {
	if i < 0 || i >= CheckinCycle {
		return 0
	}
	return i
}
