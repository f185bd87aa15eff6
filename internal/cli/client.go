package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dmcx/internal/auth"
	"dmcx/internal/syncq"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, email, password, username string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"username": username,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	var out auth.Session
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/refresh", "", map[string]any{
		"refresh_token": refreshToken,
	}, &out, "")
	return out, err
}

func (c *Client) Dashboard(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/dashboard", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Prices(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/prices", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) PriceHistory(ctx context.Context, accessToken, symbol, interval string, limit int) (map[string]any, error) {
	path := fmt.Sprintf("/v1/prices/%s/history?interval=%s&limit=%d",
		url.PathEscape(symbol), url.QueryEscape(interval), limit)
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Trade(ctx context.Context, accessToken, side, symbol, idem string, qtyMicros int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/trades", accessToken, map[string]any{
		"side":            side,
		"symbol":          symbol,
		"quantity_micros": qtyMicros,
	}, &out, idem)
	return out, err
}

func (c *Client) Deposit(ctx context.Context, accessToken, symbol, idem string, amountMicros int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/treasury/deposit", accessToken, map[string]any{
		"symbol":        symbol,
		"amount_micros": amountMicros,
	}, &out, idem)
	return out, err
}

func (c *Client) Withdraw(ctx context.Context, accessToken, symbol, destination, idem string, amountMicros int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/treasury/withdraw", accessToken, map[string]any{
		"symbol":        symbol,
		"amount_micros": amountMicros,
		"destination":   destination,
	}, &out, idem)
	return out, err
}

func (c *Client) Transactions(ctx context.Context, accessToken string, limit int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/transactions?limit=%d", limit), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) EconomyState(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/economy", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Tap(ctx context.Context, accessToken, idem string, count int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/economy/taps", accessToken, map[string]any{
		"count": count,
	}, &out, idem)
	return out, err
}

func (c *Client) Upgrade(ctx context.Context, accessToken, kind string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/economy/upgrades", accessToken, map[string]any{
		"kind": kind,
	}, &out, "")
	return out, err
}

func (c *Client) CheckIn(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/economy/check-in", accessToken, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) SubmitCipher(ctx context.Context, accessToken, symbols string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/economy/cipher", accessToken, map[string]any{
		"symbols": symbols,
	}, &out, "")
	return out, err
}

func (c *Client) Tasks(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/economy/tasks", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) CompleteTask(ctx context.Context, accessToken, taskID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/economy/tasks/"+url.PathEscape(taskID), accessToken, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) Exchange(ctx context.Context, accessToken, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/economy/exchange", accessToken, map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, accessToken string, limit int) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/leaderboard?limit=%d", limit), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) RequestKyc(ctx context.Context, accessToken string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/kyc/request", accessToken, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) AskAssistant(ctx context.Context, accessToken, question string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/assistant", accessToken, map[string]any{
		"question": question,
	}, &out, "")
	return out, err
}

func (c *Client) SyncReplay(ctx context.Context, accessToken string, commands []syncq.Command) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sync/replay", accessToken, map[string]any{
		"commands": commands,
	}, &out, "")
	return out, err
}

// Do is the escape hatch for admin subcommands that map straight onto API
// paths.
func (c *Client) Do(ctx context.Context, method, path, accessToken string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, accessToken, body, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
