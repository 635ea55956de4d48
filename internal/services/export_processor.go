package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "homeledger/internal/log"
)

// PendingExporter exports ledger rows still waiting in the sync queue.
type PendingExporter interface {
	ProcessPending(ctx context.Context) (int, error)
	RetryFailed(ctx context.Context) (int64, error)
}

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often pending rows are exported (default: 1m)
	PollInterval time.Duration

	// RetryInterval is how often failed rows are put back in the queue (default: 15m)
	RetryInterval time.Duration
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval:  time.Minute,
		RetryInterval: 15 * time.Minute,
	}
}

// ExportProcessor periodically drains the pending export queue. It backs up
// the event-driven export for events that were lost or never published.
type ExportProcessor struct {
	exporter PendingExporter
	config   ExportProcessorConfig
	logger   *applog.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportProcessor(exporter PendingExporter, config ExportProcessorConfig, logger *applog.Logger) *ExportProcessor {
	def := DefaultExportProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = def.RetryInterval
	}
	if logger == nil {
		logger = applog.FromContext(context.Background()).WithComponent(applog.ComponentWorker)
	}
	return &ExportProcessor{
		exporter: exporter,
		config:   config,
		logger:   logger,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"retry_interval", p.config.RetryInterval)
	return nil
}

// Stop gracefully stops the processor and waits for the current batch.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Export processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the processor is currently running
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	retryTicker := time.NewTicker(p.config.RetryInterval)
	defer retryTicker.Stop()

	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-retryTicker.C:
			if _, err := p.exporter.RetryFailed(ctx); err != nil {
				p.logger.ErrorContext(ctx, "Failed to requeue failed exports", applog.FieldError, err)
			}
		}
	}
}

func (p *ExportProcessor) processBatch(ctx context.Context) {
	n, err := p.exporter.ProcessPending(ctx)
	if err != nil && ctx.Err() == nil {
		p.logger.ErrorContext(ctx, "Failed to export pending ledger rows", applog.FieldError, err)
		return
	}
	if n > 0 {
		p.logger.DebugContext(ctx, "Exported pending ledger rows", "count", n)
	}
}
