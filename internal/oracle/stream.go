package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"dmcx/internal/ledger"
)

type combinedStreamMsg struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tradeStreamData struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// Run primes the cache from the REST ticker, then consumes the combined
// trade stream until ctx is cancelled, reconnecting with backoff. A trade
// already being validated keeps the tick it read; new ticks only affect
// later reads.
func (o *Oracle) Run(ctx context.Context) {
	if err := o.prime(ctx); err != nil {
		o.log.Warn("feed prime failed, starting cold", "err", err)
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := o.consumeStream(ctx)
		if ctx.Err() != nil {
			return
		}
		o.log.Warn("feed stream dropped, reconnecting", "err", err, "backoff", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (o *Oracle) consumeStream(ctx context.Context) error {
	streams := make([]string, 0, len(o.pairs))
	for _, pair := range o.pairs {
		streams = append(streams, strings.ToLower(pair)+"@trade")
	}
	url := o.streamURL + "?streams=" + strings.Join(streams, "/")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = o.httpClient.Timeout
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	o.log.Info("feed stream connected", "pairs", len(o.pairs))
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		pair, priceMicros, asOf, err := parseTradeMessage(message)
		if err != nil {
			continue
		}
		o.setTick(pair, priceMicros, asOf)
	}
}

func parseTradeMessage(raw []byte) (pair string, priceMicros int64, asOf time.Time, err error) {
	var msg combinedStreamMsg
	if err = json.Unmarshal(raw, &msg); err != nil {
		return "", 0, time.Time{}, err
	}
	var trade tradeStreamData
	if err = json.Unmarshal(msg.Data, &trade); err != nil {
		return "", 0, time.Time{}, err
	}
	if trade.Symbol == "" || trade.Price == "" {
		return "", 0, time.Time{}, fmt.Errorf("not a trade message")
	}
	price, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil || price <= 0 {
		return "", 0, time.Time{}, fmt.Errorf("bad price %q", trade.Price)
	}
	asOf = time.UnixMilli(trade.TradeTime).UTC()
	if trade.TradeTime == 0 {
		asOf = time.Now().UTC()
	}
	return strings.ToUpper(trade.Symbol), ledger.CoinsToMicros(price), asOf, nil
}
