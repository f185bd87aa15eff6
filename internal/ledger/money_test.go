package ledger

import "testing"

func TestCoinsMicrosRoundTrip(t *testing.T) {
	cases := []struct {
		coins  float64
		micros int64
	}{
		{1, 1_000_000},
		{0.5, 500_000},
		{2.345678, 2_345_678},
		{0, 0},
	}
	for _, c := range cases {
		if got := CoinsToMicros(c.coins); got != c.micros {
			t.Errorf("CoinsToMicros(%v) = %d, want %d", c.coins, got, c.micros)
		}
		if got := MicrosToCoins(c.micros); got != c.coins {
			t.Errorf("MicrosToCoins(%d) = %v, want %v", c.micros, got, c.coins)
		}
	}
}

func TestNotionalMicros(t *testing.T) {
	// 100 units at 5.00 quote each.
	got, err := NotionalMicros(5*MicrosPerCoin, 100*MicrosPerCoin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := int64(500 * MicrosPerCoin); got != want {
		t.Fatalf("got %d want %d", got, want)
	}

	// Large price times large quantity must not overflow the intermediate.
	got, err = NotionalMicros(90_000*MicrosPerCoin, 1_000_000*MicrosPerCoin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := int64(90_000) * 1_000_000 * MicrosPerCoin; got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestConvertMicros(t *testing.T) {
	// 25_000 apricots at 10_000 per coin is 2.5 coins.
	got, err := ConvertMicros(25_000, MicrosPerCoin, 10_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := int64(2_500_000); got != want {
		t.Fatalf("got %d want %d", got, want)
	}

	if _, err := ConvertMicros(100, MicrosPerCoin, 0); err == nil {
		t.Fatal("expected error for zero denominator")
	}
}

func TestUsernameFromEmail(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"alice@example.com", "alice"},
		{"Bob.Smith@example.com", "bob_smith"},
		{"x@example.com", "trader_x"},
		{"", "trader"},
	}
	for _, c := range cases {
		if got := usernameFromEmail(c.email); got != c.want {
			t.Errorf("usernameFromEmail(%q) = %q, want %q", c.email, got, c.want)
		}
	}
}
