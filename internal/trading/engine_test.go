package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"dmcx/internal/admin"
	"dmcx/internal/ledger"
	"dmcx/internal/oracle"
)

type stubPrices struct {
	tick oracle.Tick
	err  error
}

func (s stubPrices) Latest(string) (oracle.Tick, error) {
	return s.tick, s.err
}

type stubSettings struct {
	feePercent float64
}

func (s stubSettings) Settings() admin.Settings {
	return admin.Settings{PlatformFeePercent: s.feePercent}
}

func TestFeeMicros(t *testing.T) {
	cases := []struct {
		name     string
		notional int64
		percent  float64
		want     int64
	}{
		{"one percent of 500", 500 * ledger.MicrosPerCoin, 1.0, 5 * ledger.MicrosPerCoin},
		{"rounds up in platform favor", 101, 1.0, 2},
		{"zero percent", 500 * ledger.MicrosPerCoin, 0, 0},
		{"zero notional", 0, 1.0, 0},
		{"tiny notional still charged", 1, 1.0, 1},
		{"large notional keeps integer precision", 1 << 60, 1.0, 11529215046068470},
	}
	for _, c := range cases {
		if got := FeeMicros(c.notional, c.percent); got != c.want {
			t.Errorf("%s: FeeMicros(%d, %v) = %d, want %d", c.name, c.notional, c.percent, got, c.want)
		}
	}
}

func newTestEngine(prices stubPrices, feePercent float64) *Engine {
	return NewEngine(nil, prices, stubSettings{feePercent: feePercent}, nil)
}

func TestExecuteTradeValidation(t *testing.T) {
	ctx := context.Background()
	actor := ledger.Actor{UserID: "u1"}
	prices := stubPrices{tick: oracle.Tick{Symbol: "BTC", PriceMicros: 5 * ledger.MicrosPerCoin, AsOf: time.Now()}}
	e := newTestEngine(prices, 1.0)

	t.Run("bad side", func(t *testing.T) {
		_, err := e.ExecuteTrade(ctx, actor, TradeRequest{Side: "short", Symbol: "BTC", QuantityMicros: 1})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := e.ExecuteTrade(ctx, actor, TradeRequest{Side: SideBuy, Symbol: "BTC"})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("got %v, want ErrInvalidQuantity", err)
		}
	})

	t.Run("quote asset is not tradable", func(t *testing.T) {
		_, err := e.ExecuteTrade(ctx, actor, TradeRequest{Side: SideBuy, Symbol: ledger.QuoteSymbol, QuantityMicros: 1})
		if !errors.Is(err, oracle.ErrUnknownSymbol) {
			t.Fatalf("got %v, want ErrUnknownSymbol", err)
		}
	})

	t.Run("overdraft needs admin", func(t *testing.T) {
		_, err := e.ExecuteTrade(ctx, actor, TradeRequest{Side: SideBuy, Symbol: "BTC", QuantityMicros: 1, AllowOverdraft: true})
		if !errors.Is(err, ledger.ErrUnauthorized) {
			t.Fatalf("got %v, want ErrUnauthorized", err)
		}
	})

	t.Run("feed down", func(t *testing.T) {
		down := newTestEngine(stubPrices{err: oracle.ErrFeedUnavailable}, 1.0)
		_, err := down.ExecuteTrade(ctx, actor, TradeRequest{Side: SideBuy, Symbol: "BTC", QuantityMicros: ledger.MicrosPerCoin})
		if !errors.Is(err, oracle.ErrFeedUnavailable) {
			t.Fatalf("got %v, want ErrFeedUnavailable", err)
		}
	})

	t.Run("sell so small the fee eats the proceeds", func(t *testing.T) {
		// 1 micro at price 1 micro: notional rounds to zero, so proceeds
		// after fee cannot be positive.
		_, err := e.ExecuteTrade(ctx, actor, TradeRequest{
			Side: SideSell, Symbol: "BTC", QuantityMicros: 1, LimitPriceMicros: 1,
		})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("got %v, want ErrInvalidQuantity", err)
		}
	})
}

func TestResolvePrice(t *testing.T) {
	e := newTestEngine(stubPrices{tick: oracle.Tick{PriceMicros: 42}}, 1.0)

	got, err := e.resolvePrice(TradeRequest{LimitPriceMicros: 7})
	if err != nil || got != 7 {
		t.Fatalf("limit price: got %d, %v", got, err)
	}

	got, err = e.resolvePrice(TradeRequest{Symbol: "BTC"})
	if err != nil || got != 42 {
		t.Fatalf("oracle price: got %d, %v", got, err)
	}

	zero := newTestEngine(stubPrices{tick: oracle.Tick{PriceMicros: 0}}, 1.0)
	if _, err := zero.resolvePrice(TradeRequest{Symbol: "BTC"}); !errors.Is(err, oracle.ErrFeedUnavailable) {
		t.Fatalf("got %v, want ErrFeedUnavailable", err)
	}
}
