package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"homeledger/internal/amqp"
	"homeledger/internal/cli"
	apphttp "homeledger/internal/http"
	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
	"homeledger/internal/middleware/ratelimit"
	"homeledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	logger.Info("Starting homeledger")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backends := cli.InitCache(context.Background(), logger, cfg)
	defer backends.Close()

	m := metrics.New()
	opts := services.Options{
		Metrics: m,
		Logger:  logger.WithComponent(applog.ComponentLedger),
	}

	// Ledger events are optional: without a broker the export worker still
	// drains pending rows on its own schedule.
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, ledger events disabled", applog.FieldError, err)
		} else {
			defer client.Close()
			opts.Publisher = client
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - ledger events will not be published")
	}

	ledger := services.NewLedgerService(repo, backends.Factory, opts)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:  ledger,
		Health:  repo,
		Metrics: m,
		Logger:  logger.WithComponent(applog.ComponentHTTP),
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	logger.Info("HTTP server listening", "port", cfg.Port, "cache_backend", cfg.CacheBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
