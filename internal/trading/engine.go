package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"

	"dmcx/internal/admin"
	"dmcx/internal/ledger"
	"dmcx/internal/oracle"
)

var ErrInvalidQuantity = errors.New("quantity must be > 0")

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PriceSource is the slice of the oracle the engine needs.
type PriceSource interface {
	Latest(symbol string) (oracle.Tick, error)
}

// SettingsSource supplies the current platform fee.
type SettingsSource interface {
	Settings() admin.Settings
}

type TradeRequest struct {
	Side             Side
	Symbol           string
	QuantityMicros   int64
	LimitPriceMicros int64 // 0 means execute at the oracle's latest price
	AllowOverdraft   bool  // admin market-making only
	IdempotencyKey   string
}

type TradeResult struct {
	Side           Side                 `json:"side"`
	Symbol         string               `json:"symbol"`
	PriceMicros    int64                `json:"price_micros"`
	NotionalMicros int64                `json:"notional_micros"`
	FeeMicros      int64                `json:"fee_micros"`
	Transactions   []ledger.Transaction `json:"transactions"`
	Message        string               `json:"message"`
}

type Engine struct {
	ledger   *ledger.Service
	prices   PriceSource
	settings SettingsSource
	log      *slog.Logger
}

func NewEngine(ledgerSvc *ledger.Service, prices PriceSource, settings SettingsSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{ledger: ledgerSvc, prices: prices, settings: settings, log: logger}
}

// ExecuteTrade validates and settles one order against the account's
// balances. The price snapshot taken here is used for the whole trade;
// ticks arriving during settlement do not affect it. On any failure no
// balance moves.
func (e *Engine) ExecuteTrade(ctx context.Context, actor ledger.Actor, req TradeRequest) (TradeResult, error) {
	var out TradeResult
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.Side = Side(strings.ToLower(strings.TrimSpace(string(req.Side))))

	if req.Side != SideBuy && req.Side != SideSell {
		return out, fmt.Errorf("side must be buy or sell")
	}
	if req.QuantityMicros <= 0 {
		return out, ErrInvalidQuantity
	}
	if req.Symbol == ledger.QuoteSymbol {
		return out, oracle.ErrUnknownSymbol
	}
	if req.AllowOverdraft && !actor.Admin {
		return out, ledger.ErrUnauthorized
	}

	price, err := e.resolvePrice(req)
	if err != nil {
		return out, err
	}
	notional, err := ledger.NotionalMicros(price, req.QuantityMicros)
	if err != nil {
		return out, err
	}
	fee := FeeMicros(notional, e.settings.Settings().PlatformFeePercent)

	out.Side = req.Side
	out.Symbol = req.Symbol
	out.PriceMicros = price
	out.NotionalMicros = notional
	out.FeeMicros = fee

	var debit, credit ledger.Leg
	switch req.Side {
	case SideBuy:
		debit = ledger.Leg{Symbol: ledger.QuoteSymbol, AmountMicros: notional + fee, Kind: ledger.KindBuy}
		credit = ledger.Leg{Symbol: req.Symbol, AmountMicros: req.QuantityMicros, Kind: ledger.KindBuy}
	case SideSell:
		proceeds := notional - fee
		if proceeds <= 0 {
			// The fee may never push sell proceeds negative.
			return out, ErrInvalidQuantity
		}
		debit = ledger.Leg{Symbol: req.Symbol, AmountMicros: req.QuantityMicros, Kind: ledger.KindSell}
		credit = ledger.Leg{Symbol: ledger.QuoteSymbol, AmountMicros: proceeds, Kind: ledger.KindSell}
	}

	txns, err := e.ledger.TransferPair(ctx, actor, actor.UserID, debit, credit, req.AllowOverdraft, req.IdempotencyKey)
	if err != nil {
		return out, err
	}
	out.Transactions = txns
	out.Message = confirmation(req.Side, req.Symbol, req.QuantityMicros, price)

	e.log.Info("trade settled",
		"user_id", actor.UserID,
		"side", req.Side,
		"symbol", req.Symbol,
		"quantity_micros", req.QuantityMicros,
		"price_micros", price,
		"fee_micros", fee,
		"overdraft", req.AllowOverdraft,
	)
	return out, nil
}

// resolvePrice uses the client's limit price when given, side-stepping feed
// staleness entirely; otherwise it takes the oracle's latest snapshot.
func (e *Engine) resolvePrice(req TradeRequest) (int64, error) {
	if req.LimitPriceMicros > 0 {
		return req.LimitPriceMicros, nil
	}
	tick, err := e.prices.Latest(req.Symbol)
	if err != nil {
		return 0, err
	}
	if tick.PriceMicros <= 0 {
		return 0, oracle.ErrFeedUnavailable
	}
	return tick.PriceMicros, nil
}

// FeeMicros rounds in the platform's favor. The multiply runs through
// big.Rat so large notionals keep integer precision.
func FeeMicros(notionalMicros int64, feePercent float64) int64 {
	if feePercent <= 0 || notionalMicros <= 0 {
		return 0
	}
	pct := new(big.Rat).SetFloat64(feePercent)
	if pct == nil {
		return 0
	}
	fee := new(big.Rat).SetInt64(notionalMicros)
	fee.Mul(fee, pct)
	fee.Quo(fee, big.NewRat(100, 1))
	out := new(big.Int).Add(fee.Num(), new(big.Int).Sub(fee.Denom(), big.NewInt(1)))
	out.Div(out, fee.Denom())
	if !out.IsInt64() {
		return math.MaxInt64
	}
	return out.Int64()
}

func confirmation(side Side, symbol string, qtyMicros, priceMicros int64) string {
	verb := "Bought"
	if side == SideSell {
		verb = "Sold"
	}
	return fmt.Sprintf("%s %.4f %s at %.4f %s",
		verb, ledger.MicrosToCoins(qtyMicros), symbol,
		ledger.MicrosToCoins(priceMicros), ledger.QuoteSymbol)
}
