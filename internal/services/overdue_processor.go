package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homeledger/internal/cache"
	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
	"homeledger/internal/storage"
)

// OverdueSweepLockKey is held for the duration of one sweep so replicas of
// the worker do not sweep concurrently.
const OverdueSweepLockKey = "overdue-sweep"

// OverdueProcessor moves past-due pending bills of every household to
// overdue on a schedule.
type OverdueProcessor struct {
	storage *storage.SQLiteRepository
	locker  cache.Locker
	lockTTL time.Duration
	metrics *metrics.Metrics
	logger  *applog.Logger
}

// NewOverdueProcessor creates a processor. locker may be nil when a single
// worker runs.
func NewOverdueProcessor(repo *storage.SQLiteRepository, locker cache.Locker, lockTTL time.Duration, m *metrics.Metrics, logger *applog.Logger) *OverdueProcessor {
	if logger == nil {
		logger = applog.FromContext(context.Background()).WithComponent(applog.ComponentSweep)
	}
	return &OverdueProcessor{
		storage: repo,
		locker:  locker,
		lockTTL: lockTTL,
		metrics: m,
		logger:  logger,
	}
}

// ProcessOverdue runs one sweep. skipped is true when another worker holds
// the sweep lock; that is not an error.
func (p *OverdueProcessor) ProcessOverdue(ctx context.Context) (marked int64, skipped bool, err error) {
	if p.storage == nil {
		return 0, false, fmt.Errorf("processor not properly initialized")
	}

	if p.locker != nil {
		release, err := p.locker.TryLock(ctx, OverdueSweepLockKey, p.lockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			p.logger.DebugContext(ctx, "Overdue sweep skipped, lock held elsewhere")
			return 0, true, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("acquire sweep lock: %w", err)
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				p.logger.WarnContext(ctx, "Failed to release sweep lock", applog.FieldError, rerr)
			}
		}()
	}

	start := time.Now()
	marked, err = p.storage.SweepAllOverdue(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("sweep overdue bills: %w", err)
	}
	p.metrics.ObserveOverdue(marked)

	p.logger.InfoContext(ctx, "Overdue sweep complete",
		"marked_overdue", marked,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return marked, false, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// Errors are logged and the loop continues.
func (p *OverdueProcessor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, _, err := p.ProcessOverdue(ctx); err != nil && ctx.Err() == nil {
			p.logger.ErrorContext(ctx, "Overdue sweep failed", applog.FieldError, err)
		}
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "Overdue processor stopped")
			return nil
		case <-ticker.C:
		}
	}
}
