package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dmcx/internal/ledger"
)

// History returns a close-price series for a platform symbol, oldest first.
// The synthetic token's candles are the proxy's candles scaled by the fixed
// ratio and the current multiplier.
func (o *Oracle) History(ctx context.Context, symbol, interval string, limit int) ([]PricePoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if limit <= 0 || limit > 500 {
		limit = 64
	}
	if interval == "" {
		interval = "1h"
	}

	scale := 1.0
	pair := symbol + ledger.QuoteSymbol
	switch symbol {
	case ledger.SyntheticSymbol:
		pair = SyntheticProxyPair
		scale = SyntheticProxyRatio * o.Multiplier()
	case ledger.QuoteSymbol:
		return nil, ErrUnknownSymbol
	default:
		if !o.knownPair(pair) {
			return nil, ErrUnknownSymbol
		}
	}

	raw, err := o.fetchKlines(ctx, pair, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	points, err := parseKlines(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	if scale != 1.0 {
		for i := range points {
			points[i].PriceMicros = scaleMicros(points[i].PriceMicros, scale)
		}
	}
	return points, nil
}

// prime seeds the tick cache from the REST ticker so Latest has a value
// before the first stream trade arrives.
func (o *Oracle) prime(ctx context.Context) error {
	for _, pair := range o.pairs {
		price, err := o.fetchTicker(ctx, pair)
		if err != nil {
			return err
		}
		o.setTick(pair, price, time.Now().UTC())
	}
	return nil
}

func (o *Oracle) fetchTicker(ctx context.Context, pair string) (int64, error) {
	u := o.restURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(pair)
	body, err := o.getJSON(ctx, u)
	if err != nil {
		return 0, err
	}
	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("bad ticker price %q", out.Price)
	}
	return ledger.CoinsToMicros(price), nil
}

func (o *Oracle) fetchKlines(ctx context.Context, pair, interval string, limit int) ([]byte, error) {
	u := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		o.restURL, url.QueryEscape(pair), url.QueryEscape(interval), limit)
	return o.getJSON(ctx, u)
}

func (o *Oracle) getJSON(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// parseKlines decodes the feed's kline arrays: index 0 is the open time in
// milliseconds, index 4 the close price as a string.
func parseKlines(raw []byte) ([]PricePoint, error) {
	var rows [][]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	points := make([]PricePoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		openTime, ok := row[0].(float64)
		if !ok {
			continue
		}
		closeStr, ok := row[4].(string)
		if !ok {
			continue
		}
		closePrice, err := strconv.ParseFloat(closeStr, 64)
		if err != nil || closePrice <= 0 {
			continue
		}
		points = append(points, PricePoint{
			At:          time.UnixMilli(int64(openTime)).UTC(),
			PriceMicros: ledger.CoinsToMicros(closePrice),
		})
	}
	return points, nil
}
