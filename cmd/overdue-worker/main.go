package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"homeledger/internal/cli"
	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
	"homeledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentSweep)
	logger.Info("Starting overdue-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// With CACHE_BACKEND=redis the sweep lock is shared by every replica.
	backends := cli.InitCache(context.Background(), logger, cfg)
	defer backends.Close()

	m := metrics.New()
	processor := services.NewOverdueProcessor(repo, backends.Locker, cfg.SweepLockTTL, m, logger)

	logger.Info("Overdue processor configured",
		"interval", cfg.SweepInterval,
		"lock_ttl", cfg.SweepLockTTL,
		"sqlite_db", cfg.SQLiteDBPath)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return processor.Run(gctx, cfg.SweepInterval)
	})
	g.Go(func() error {
		return cli.ServeMetrics(gctx, logger, ":"+cfg.Port, m)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Overdue worker failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Overdue worker stopped")
}
