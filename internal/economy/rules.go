package economy

import "time"

const (
	DefaultMaxEnergy = int64(500)
	EnergyPerUpgrade = int64(500)

	// One energy unit regenerates every 3 seconds of wall-clock time,
	// computed lazily from the last update so it survives restarts and
	// reconnects without a background timer.
	EnergyRegenSeconds = int64(3)

	CheckInUnitReward = int64(500)
	CheckInStreakMax  = 7

	// Apricots credited per bot level on each worker accrual tick.
	BotYieldPerLevel = int64(50)
)

func TapUpgradeCost(level int64) int64 {
	n := level + 1
	return n * n * 2000
}

func EnergyUpgradeCost(maxEnergy int64) int64 {
	return maxEnergy / 500 * 5000
}

func BotUpgradeCost(level int64) int64 {
	return (level + 1) * 25000
}

// RegenerateEnergy applies passive regeneration for the elapsed time and
// returns the new level together with the advanced update timestamp. The
// timestamp only moves by whole regenerated units so fractional progress is
// never lost between calls.
func RegenerateEnergy(energy, maxEnergy int64, lastUpdated, now time.Time) (int64, time.Time) {
	if energy >= maxEnergy {
		return energy, now
	}
	elapsed := now.Sub(lastUpdated)
	if elapsed <= 0 {
		return energy, lastUpdated
	}
	gained := int64(elapsed.Seconds()) / EnergyRegenSeconds
	if gained <= 0 {
		return energy, lastUpdated
	}
	next := energy + gained
	if next >= maxEnergy {
		return maxEnergy, now
	}
	return next, lastUpdated.Add(time.Duration(gained*EnergyRegenSeconds) * time.Second)
}

// DayUTC truncates to the UTC calendar day all daily claims are keyed on.
func DayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return DayUTC(a).Equal(DayUTC(b))
}

// NextStreak computes the check-in streak for a claim happening today.
// A claim on the day right after the previous one extends the streak up to
// the cap; a missed day starts over at 1 (never 0).
func NextStreak(prev int, lastClaim *time.Time, today time.Time) int {
	if lastClaim == nil {
		return 1
	}
	if DayUTC(*lastClaim).AddDate(0, 0, 1).Equal(DayUTC(today)) {
		next := prev + 1
		if next > CheckInStreakMax {
			return CheckInStreakMax
		}
		return next
	}
	return 1
}
