// Package assistant proxies player questions to an OpenAI-compatible chat
// completion endpoint. The assistant is decoration, not infrastructure: any
// failure degrades to a canned apology instead of surfacing an error.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const fallbackReply = "Sorry, the assistant is taking a nap right now. Try again in a bit."

const systemPrompt = "You are the in-game helper for a simulated crypto " +
	"exchange with a tap game. Answer briefly. Never give real financial advice; " +
	"everything here is play money."

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   "gpt-4o-mini",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger,
	}
}

// Configured reports whether an endpoint was provided at all; the API layer
// additionally checks the admin ai_enabled toggle.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Ask returns the assistant's reply, or the fallback line when the upstream
// is missing, slow or broken.
func (c *Client) Ask(ctx context.Context, question string) string {
	question = strings.TrimSpace(question)
	if question == "" || !c.Configured() {
		return fallbackReply
	}
	reply, err := c.complete(ctx, question)
	if err != nil {
		c.log.Warn("assistant request failed", "error", err)
		return fallbackReply
	}
	return reply
}

func (c *Client) complete(ctx context.Context, question string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: question},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assistant request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("assistant status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode assistant response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("assistant returned no choices")
	}
	reply := strings.TrimSpace(out.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("assistant returned empty reply")
	}
	return reply, nil
}
