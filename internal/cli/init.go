// Package cli provides common CLI initialization utilities shared by
// cmd/homeledger, cmd/overdue-worker and cmd/ledger-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"homeledger/internal/cache"
	"homeledger/internal/config"
	applog "homeledger/internal/log"
	"homeledger/internal/sheets"
	gsheet "homeledger/internal/sheets/google"
	"homeledger/internal/sheets/memory"
	"homeledger/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default. It runs before config validation so it
// reads the environment directly.
func SetupLogger(component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Format:    os.Getenv("LOG_FORMAT"),
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	logger.Info("SQLite repository ready", "path", dbPath, "schema_version", repo.SchemaVersion())
	return repo
}

// Backends holds the cache factory and lock provider chosen by CACHE_BACKEND.
type Backends struct {
	Factory *cache.Factory
	Locker  cache.Locker
	Manager *cache.Manager
	redis   *redis.Client
}

// Close stops background cache cleanup and closes the Redis client if any.
func (b *Backends) Close() {
	if b.Manager != nil {
		b.Manager.Stop()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

// InitCache connects the configured cache backend. A Redis backend that
// cannot be reached is fatal; the memory backend never fails.
func InitCache(ctx context.Context, logger *applog.Logger, cfg *config.Config) *Backends {
	if cfg.CacheBackend == cache.BackendRedis {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to connect to Redis", applog.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Cache backend ready", "backend", cache.BackendRedis)
		return &Backends{
			Factory: cache.NewRedisFactory(client),
			Locker:  cache.NewRedisLocker(client),
			redis:   client,
		}
	}

	manager := cache.NewManager()
	manager.StartCleanup(time.Minute)
	logger.Info("Cache backend ready", "backend", cache.BackendMemory, "size", cfg.CacheSize)
	return &Backends{
		Factory: cache.NewMemoryFactory(cfg.CacheSize, manager),
		Locker:  cache.NewLocalLocker(),
		Manager: manager,
	}
}

// InitExporter picks the ledger export backend. With GOOGLE_SPREADSHEET_ID
// set rows go to Google Sheets, otherwise they are kept in memory.
func InitExporter(ctx context.Context, logger *applog.Logger, cfg *config.Config) sheets.LedgerExporter {
	if !cfg.ExportEnabled() {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting in memory")
		return memory.New()
	}

	client, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets exporter ready",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)
	return client
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished or timed out.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
