package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"homeledger/internal/amqp"
	"homeledger/internal/core"
	applog "homeledger/internal/log"
	"homeledger/internal/metrics"
	"homeledger/internal/sheets"
	"homeledger/internal/storage"
)

// ExportWorker mirrors committed ledger rows from SQLite into the ledger
// spreadsheet.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	exporter  sheets.LedgerExporter
	batchSize int
	metrics   *metrics.Metrics
	logger    *applog.Logger
}

func NewExportWorker(repo *storage.SQLiteRepository, exporter sheets.LedgerExporter, batchSize int, m *metrics.Metrics, logger *applog.Logger) *ExportWorker {
	if logger == nil {
		logger = applog.FromContext(context.Background()).WithComponent(applog.ComponentWorker)
	}
	return &ExportWorker{
		storage:   repo,
		exporter:  exporter,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

// HandleLedgerEvent exports the row an event refers to. Rows already synced
// are acknowledged without writing again, so redeliveries are harmless. An
// event for a row that does not exist is dropped. Only storage failures are
// returned, which requeues the delivery.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		"event_id", msg.ID,
		"kind", msg.Kind,
		applog.FieldTransactionID, msg.TransactionID)

	status, err := w.storage.SyncStatus(ctx, msg.TransactionID)
	if errors.Is(err, sql.ErrNoRows) {
		w.logger.WarnContext(ctx, "Ledger event for unknown transaction, dropping",
			"event_id", msg.ID,
			applog.FieldTransactionID, msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get sync status: %w", err)
	}
	if status == storage.SyncSynced {
		w.logger.DebugContext(ctx, "Transaction already exported", applog.FieldTransactionID, msg.TransactionID)
		return nil
	}

	t, err := w.storage.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	// A failed write is marked and retried by RetryFailed, not by redelivery.
	if err := w.exportRow(ctx, t); err != nil {
		w.logger.WarnContext(ctx, "Export failed, row left for retry",
			applog.FieldTransactionID, t.ID,
			applog.FieldError, err)
	}
	return nil
}

// ProcessPending exports ledger rows still pending. It is the backup path
// for events that were never published or were lost, and returns how many
// rows were exported.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupExportCheck drains a larger batch at worker start to catch up after
// downtime.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	n, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	if n == 0 {
		w.logger.InfoContext(ctx, "No pending ledger rows found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup export completed", "exported", n)
	return nil
}

func (w *ExportWorker) processPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.storage.PendingExport(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending ledger rows: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending ledger rows", "count", len(pending))

	exported := 0
	for _, t := range pending {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		if err := w.exportRow(ctx, t); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export ledger row",
				applog.FieldTransactionID, t.ID,
				applog.FieldError, err)
			continue
		}
		exported++
	}
	return exported, nil
}

// RetryFailed puts rows whose export failed back in the pending queue.
func (w *ExportWorker) RetryFailed(ctx context.Context) (int64, error) {
	n, err := w.storage.RetryExportErrors(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.InfoContext(ctx, "Requeued failed ledger exports", "count", n)
	}
	return n, nil
}

func (w *ExportWorker) exportRow(ctx context.Context, t core.Transaction) error {
	id := t.ID
	ref, err := w.exporter.ExportTransaction(ctx, t)
	w.metrics.ObserveExport(err)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, id); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark export error",
				applog.FieldTransactionID, id,
				applog.FieldError, markErr)
		}
		return fmt.Errorf("export transaction %d: %w", id, err)
	}

	// the row is written; a failed mark only means it may be written again
	if err := w.storage.MarkExported(ctx, id); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as exported",
			applog.FieldTransactionID, id,
			applog.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Exported ledger row",
		applog.FieldTransactionID, id,
		applog.FieldSheetsRef, ref)
	return nil
}
