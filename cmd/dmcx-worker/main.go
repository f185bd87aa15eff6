// The worker accrues passive bot income and records price snapshots so
// history charts keep working through feed outages.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmcx/internal/admin"
	"dmcx/internal/config"
	"dmcx/internal/db"
	"dmcx/internal/economy"
	"dmcx/internal/ledger"
	"dmcx/internal/oracle"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
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
	adminSvc := admin.NewService(pool, feed, nil, logger)
	if err := adminSvc.LoadSettings(ctx); err != nil {
		logger.Error("settings init failed", "err", err)
		os.Exit(1)
	}
	economySvc := economy.NewService(pool, ledgerSvc, adminSvc, logger)
	snapshots := oracle.NewSnapshotStore(pool)

	tick := func() {
		if _, err := economySvc.RunBotTick(ctx); err != nil {
			logger.Error("bot tick failed", "err", err)
		}
		if err := snapshots.Record(ctx, feed); err != nil {
			logger.Error("price snapshot failed", "err", err)
		}
	}

	if cfg.RunOnce {
		tick()
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.TickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.TickEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			tick()
		}
	}
}
