package oracle

import (
	"errors"
	"math"
	"testing"
	"time"

	"dmcx/internal/ledger"
)

func newTestOracle() *Oracle {
	return New("", "", time.Second, []string{SyntheticProxyPair, "BTCUSDT"}, nil)
}

func TestMultiplierCompounds(t *testing.T) {
	o := newTestOracle()
	if got := o.Multiplier(); got != 1.0 {
		t.Fatalf("fresh multiplier = %v, want 1.0", got)
	}
	o.ApplyFactor(PumpFactor)
	got := o.ApplyFactor(PumpFactor)
	if math.Abs(got-1.3225) > 1e-9 {
		t.Fatalf("after two pumps multiplier = %v, want 1.3225", got)
	}
	if got := o.ResetMultiplier(); got != 1.0 {
		t.Fatalf("after reset multiplier = %v, want exactly 1.0", got)
	}
}

func TestLatestQuotePegged(t *testing.T) {
	o := newTestOracle()
	tick, err := o.Latest(ledger.QuoteSymbol)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tick.PriceMicros != ledger.MicrosPerCoin {
		t.Fatalf("quote price = %d, want %d", tick.PriceMicros, ledger.MicrosPerCoin)
	}
}

func TestLatestSyntheticDerivation(t *testing.T) {
	o := newTestOracle()

	if _, err := o.Latest(ledger.SyntheticSymbol); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("no proxy tick yet: got %v, want ErrFeedUnavailable", err)
	}

	asOf := time.Now().UTC()
	o.setTick(SyntheticProxyPair, 2*ledger.MicrosPerCoin, asOf)

	tick, err := o.Latest(ledger.SyntheticSymbol)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := int64(1_700_000); tick.PriceMicros != want {
		t.Fatalf("synthetic price = %d, want %d", tick.PriceMicros, want)
	}

	o.ApplyFactor(PumpFactor)
	tick, err = o.Latest(ledger.SyntheticSymbol)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := int64(1_955_000); tick.PriceMicros != want {
		t.Fatalf("pumped synthetic price = %d, want %d", tick.PriceMicros, want)
	}
}

func TestLatestUnknownSymbol(t *testing.T) {
	o := newTestOracle()
	if _, err := o.Latest("DOGE"); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("got %v, want ErrUnknownSymbol", err)
	}
	if _, err := o.Latest("BTC"); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("known pair, no tick yet: got %v, want ErrFeedUnavailable", err)
	}
}

func TestSymbolsOrder(t *testing.T) {
	o := newTestOracle()
	got := o.Symbols()
	want := []string{ledger.SyntheticSymbol, "TON", "BTC"}
	if len(got) != len(want) {
		t.Fatalf("Symbols() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Symbols()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseTradeMessage(t *testing.T) {
	raw := []byte(`{"stream":"tonusdt@trade","data":{"e":"trade","s":"TONUSDT","p":"2.3456","T":1756700000000}}`)
	pair, price, asOf, err := parseTradeMessage(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair != "TONUSDT" {
		t.Fatalf("pair = %q, want TONUSDT", pair)
	}
	if want := int64(2_345_600); price != want {
		t.Fatalf("price = %d, want %d", price, want)
	}
	if want := time.UnixMilli(1756700000000).UTC(); !asOf.Equal(want) {
		t.Fatalf("asOf = %v, want %v", asOf, want)
	}

	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"stream":"x@trade","data":{"s":"","p":"1"}}`),
		[]byte(`{"stream":"x@trade","data":{"s":"TONUSDT","p":"zero"}}`),
		[]byte(`{"stream":"x@trade","data":{"s":"TONUSDT","p":"-1"}}`),
	}
	for _, b := range bad {
		if _, _, _, err := parseTradeMessage(b); err == nil {
			t.Errorf("parseTradeMessage(%s): expected error", b)
		}
	}
}

func TestParseKlines(t *testing.T) {
	raw := []byte(`[
		[1756700000000,"2.30","2.40","2.20","2.35","1000",1756703599999],
		[1756703600000,"2.35","2.50","2.30","2.45","900",1756707199999],
		[1756707200000,"2.45","2.45","2.45","bogus","0",1756710799999]
	]`)
	points, err := parseKlines(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2 (bad close skipped)", len(points))
	}
	if want := int64(2_350_000); points[0].PriceMicros != want {
		t.Fatalf("first close = %d, want %d", points[0].PriceMicros, want)
	}
	if want := time.UnixMilli(1756700000000).UTC(); !points[0].At.Equal(want) {
		t.Fatalf("first open time = %v, want %v", points[0].At, want)
	}
	if !points[1].At.After(points[0].At) {
		t.Fatal("points not in ascending time order")
	}

	if _, err := parseKlines([]byte(`{"not":"an array"}`)); err == nil {
		t.Fatal("expected error for non-array payload")
	}
}
