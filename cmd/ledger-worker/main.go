package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"homeledger/internal/amqp"
	"homeledger/internal/cli"
	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
	"homeledger/internal/services"
	"homeledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.RequireAMQP(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	exporter := cli.InitExporter(context.Background(), logger, cfg)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	m := metrics.New()
	exportWorker := worker.NewExportWorker(repo, exporter, cfg.ExportBatchSize, m, logger)
	processor := services.NewExportProcessor(exportWorker, services.ExportProcessorConfig{
		PollInterval: cfg.ExportInterval,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Warn("Export processor stop", applog.FieldError, err)
		}
	})

	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupExportCheck(ctx); err != nil {
		logger.Error("Failed startup export check", applog.FieldError, err)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start export processor", applog.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeLedgerEvents(gctx, exportWorker.HandleLedgerEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return cli.ServeMetrics(gctx, logger, ":"+cfg.Port, m)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Ledger worker failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Ledger worker stopped")
}
