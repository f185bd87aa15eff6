package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmcx/internal/admin"
	"dmcx/internal/api"
	"dmcx/internal/assistant"
	"dmcx/internal/auth"
	"dmcx/internal/config"
	"dmcx/internal/db"
	"dmcx/internal/economy"
	"dmcx/internal/ledger"
	"dmcx/internal/oracle"
	"dmcx/internal/trading"
	"dmcx/internal/treasury"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	feed := oracle.New(cfg.FeedStreamURL, cfg.FeedRestURL, cfg.FeedTimeout, cfg.FeedSymbols, logger)
	go feed.Run(ctx)

	ledgerSvc := ledger.NewService(pool, logger)
	adminSvc := admin.NewService(pool, feed, cfg.AdminUserIDs, logger)
	if err := adminSvc.LoadSettings(ctx); err != nil {
		logger.Error("settings init failed", "err", err)
		os.Exit(1)
	}

	server := api.New(cfg, logger, api.Deps{
		Auth:      auth.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey),
		Ledger:    ledgerSvc,
		Trading:   trading.NewEngine(ledgerSvc, feed, adminSvc, logger),
		Treasury:  treasury.NewService(ledgerSvc, logger),
		Economy:   economy.NewService(pool, ledgerSvc, adminSvc, logger),
		Admin:     adminSvc,
		Oracle:    feed,
		Prices:    oracle.NewSnapshotStore(pool),
		Assistant: assistant.NewClient(cfg.AssistantURL, cfg.AssistantKey, logger),
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("dmcx api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
