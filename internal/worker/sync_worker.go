package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// SyncWorker mirrors transactions from SQLite into the external statement.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	statement sheets.StatementWriter
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, statement sheets.StatementWriter, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		statement: statement,
		batchSize: batchSize,
	}
}

// HandleMessage processes one sync message from AMQP.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.SyncMessage) error {
	switch msg.Op {
	case amqp.OpUpsert:
		return w.syncTransaction(ctx, msg.ID)
	case amqp.OpDelete:
		if err := w.statement.DeleteTransaction(ctx, msg.UUID); err != nil {
			return fmt.Errorf("delete statement row: %w", err)
		}
		slog.InfoContext(ctx, "Statement row removed for deleted transaction", "id", msg.ID)
		return nil
	default:
		return fmt.Errorf("unknown sync op %q", msg.Op)
	}
}

func (w *SyncWorker) syncTransaction(ctx context.Context, id int64) error {
	t, err := w.storage.GetByID(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted before the message arrived; the delete message will
		// clean the statement up.
		slog.WarnContext(ctx, "Transaction gone before sync, skipping", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if err := w.statement.AppendTransaction(ctx, t); err != nil {
		if markErr := w.storage.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", markErr)
		}
		return fmt.Errorf("append statement row: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

// StartupSyncCheck pushes transactions that were left pending, e.g.
// because the broker was down when they were written.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	return w.drainPending(ctx)
}

// ProcessPending is the periodic catch-up pass for messages lost between
// startup checks.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	return w.drainPending(ctx)
}

func (w *SyncWorker) drainPending(ctx context.Context) error {
	for {
		ids, err := w.storage.PendingSync(ctx, w.batchSize)
		if err != nil {
			return fmt.Errorf("list pending transactions: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		slog.InfoContext(ctx, "Catch-up sync: processing pending transactions", "count", len(ids))
		for _, id := range ids {
			if err := w.syncTransaction(ctx, id); err != nil {
				// Row is marked with an error; carry on with the rest.
				slog.ErrorContext(ctx, "Catch-up sync failed for transaction", "id", id, "error", err)
			}
		}
		if len(ids) < w.batchSize {
			return nil
		}
	}
}
