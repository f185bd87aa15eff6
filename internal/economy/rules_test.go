package economy

import (
	"testing"
	"time"
)

func TestUpgradeCosts(t *testing.T) {
	cases := []struct {
		name string
		got  int64
		want int64
	}{
		{"tap level 1", TapUpgradeCost(1), 8000},
		{"tap level 2", TapUpgradeCost(2), 18000},
		{"tap level 5", TapUpgradeCost(5), 72000},
		{"energy at 500", EnergyUpgradeCost(500), 5000},
		{"energy at 1000", EnergyUpgradeCost(1000), 10000},
		{"energy at 2500", EnergyUpgradeCost(2500), 25000},
		{"bot level 0", BotUpgradeCost(0), 25000},
		{"bot level 3", BotUpgradeCost(3), 100000},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestRegenerateEnergy(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("one unit per three seconds", func(t *testing.T) {
		energy, at := RegenerateEnergy(100, 500, base, base.Add(9*time.Second))
		if energy != 103 {
			t.Fatalf("energy = %d, want 103", energy)
		}
		if !at.Equal(base.Add(9 * time.Second)) {
			t.Fatalf("timestamp advanced to %v", at)
		}
	})

	t.Run("fractional progress preserved", func(t *testing.T) {
		energy, at := RegenerateEnergy(100, 500, base, base.Add(8*time.Second))
		if energy != 102 {
			t.Fatalf("energy = %d, want 102", energy)
		}
		// Only 6 of the 8 seconds were spent; the rest carries over.
		if !at.Equal(base.Add(6 * time.Second)) {
			t.Fatalf("timestamp = %v, want base+6s", at)
		}
	})

	t.Run("caps at max", func(t *testing.T) {
		energy, _ := RegenerateEnergy(499, 500, base, base.Add(time.Hour))
		if energy != 500 {
			t.Fatalf("energy = %d, want 500", energy)
		}
	})

	t.Run("no time no change", func(t *testing.T) {
		energy, at := RegenerateEnergy(250, 500, base, base.Add(2*time.Second))
		if energy != 250 || !at.Equal(base) {
			t.Fatalf("energy = %d at %v, want unchanged", energy, at)
		}
	})

	t.Run("already full", func(t *testing.T) {
		energy, _ := RegenerateEnergy(500, 500, base, base.Add(time.Minute))
		if energy != 500 {
			t.Fatalf("energy = %d, want 500", energy)
		}
	})
}

func TestNextStreak(t *testing.T) {
	today := time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	lastWeek := today.AddDate(0, 0, -6)

	cases := []struct {
		name string
		prev int
		last *time.Time
		want int
	}{
		{"first claim", 0, nil, 1},
		{"consecutive day extends", 3, &yesterday, 4},
		{"missed days reset", 5, &lastWeek, 1},
		{"caps at seven", 7, &yesterday, 7},
	}
	for _, c := range cases {
		if got := NextStreak(c.prev, c.last, today); got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, got, c.want)
		}
	}
}

func TestNextStreakDayBoundary(t *testing.T) {
	// 23:59 yesterday and 00:01 today are consecutive UTC days even though
	// only two minutes apart.
	last := time.Date(2025, 6, 9, 23, 59, 0, 0, time.UTC)
	today := time.Date(2025, 6, 10, 0, 1, 0, 0, time.UTC)
	if got := NextStreak(2, &last, today); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}
