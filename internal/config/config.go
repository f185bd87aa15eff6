package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseAnonKey string
	AdminUserIDs    []string
	FeedStreamURL   string
	FeedRestURL     string
	FeedTimeout     time.Duration
	FeedSymbols     []string
	AssistantURL    string
	AssistantKey    string
}

type WorkerConfig struct {
	DatabaseURL   string
	FeedStreamURL string
	FeedRestURL   string
	FeedTimeout   time.Duration
	FeedSymbols   []string
	TickEvery     time.Duration
	RunOnce       bool
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	_ = godotenv.Load()

	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("DMCX_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey: strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		AdminUserIDs:    envList("DMCX_ADMIN_USER_IDS"),
		FeedStreamURL:   envDefault("DMCX_FEED_STREAM_URL", "wss://stream.binance.com:9443/stream"),
		FeedRestURL:     envDefault("DMCX_FEED_REST_URL", "https://api.binance.com"),
		FeedTimeout:     envDurationDefault("DMCX_FEED_TIMEOUT", 5*time.Second),
		FeedSymbols:     envListDefault("DMCX_FEED_SYMBOLS", []string{"BTCUSDT", "ETHUSDT", "TONUSDT", "SOLUSDT"}),
		AssistantURL:    strings.TrimRight(strings.TrimSpace(os.Getenv("DMCX_ASSISTANT_URL")), "/"),
		AssistantKey:    strings.TrimSpace(os.Getenv("DMCX_ASSISTANT_KEY")),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SupabaseURL == "" {
		return cfg, fmt.Errorf("SUPABASE_URL is required")
	}
	if cfg.SupabaseAnonKey == "" {
		return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	_ = godotenv.Load()

	cfg := WorkerConfig{
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		FeedStreamURL: envDefault("DMCX_FEED_STREAM_URL", "wss://stream.binance.com:9443/stream"),
		FeedRestURL:   envDefault("DMCX_FEED_REST_URL", "https://api.binance.com"),
		FeedTimeout:   envDurationDefault("DMCX_FEED_TIMEOUT", 5*time.Second),
		FeedSymbols:   envListDefault("DMCX_FEED_SYMBOLS", []string{"BTCUSDT", "ETHUSDT", "TONUSDT", "SOLUSDT"}),
		TickEvery:     envDurationDefault("DMCX_WORKER_TICK_EVERY", time.Minute),
		RunOnce:       envBoolDefault("DMCX_WORKER_RUN_ONCE", false),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	_ = godotenv.Load()
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("DMC_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envListDefault(key string, fallback []string) []string {
	if out := envList(key); len(out) > 0 {
		return out
	}
	return fallback
}
