package ledger

import (
	"fmt"
	"math"
	"math/big"
)

const (
	// All asset balances are stored as integer micros of the asset itself,
	// e.g. 1 USDT = 1_000_000 micros.
	MicrosPerCoin = int64(1_000_000)

	// QuoteSymbol is the platform's reference asset; every account holds a
	// row for it and for the synthetic token, even at zero.
	QuoteSymbol     = "USDT"
	SyntheticSymbol = "DMC"
)

func CoinsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerCoin)))
}

func MicrosToCoins(v int64) float64 {
	return float64(v) / float64(MicrosPerCoin)
}

// NotionalMicros computes quantity * price in quote micros, where both the
// quantity and the price are themselves micros. big.Int keeps the
// intermediate product from overflowing int64.
func NotionalMicros(priceMicros, qtyMicros int64) (int64, error) {
	p := big.NewInt(priceMicros)
	q := big.NewInt(qtyMicros)
	v := new(big.Int).Mul(p, q)
	v = v.Div(v, big.NewInt(MicrosPerCoin))
	if !v.IsInt64() {
		return 0, fmt.Errorf("notional overflow")
	}
	return v.Int64(), nil
}

// ConvertMicros rescales an amount by rate numerator/denominator, used for
// the apricot-to-DMC exchange.
func ConvertMicros(amount, num, den int64) (int64, error) {
	if den <= 0 {
		return 0, fmt.Errorf("conversion rate must be > 0")
	}
	v := new(big.Int).Mul(big.NewInt(amount), big.NewInt(num))
	v = v.Div(v, big.NewInt(den))
	if !v.IsInt64() {
		return 0, fmt.Errorf("conversion overflow")
	}
	return v.Int64(), nil
}
