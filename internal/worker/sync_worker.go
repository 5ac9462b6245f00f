package worker

import (
	"context"
	"fmt"
	"log/slog"

	"summa/internal/amqp"
	"summa/internal/sheets"
	"summa/internal/storage"
)

// SyncWorker forwards invoice changes from SQLite to an external sheet.
// It consumes lightweight sync messages and fetches the full invoice
// from the database before appending it.
type SyncWorker struct {
	storage  *storage.SQLiteRepository
	appender sheets.InvoiceAppender
}

func NewSyncWorker(storage *storage.SQLiteRepository, appender sheets.InvoiceAppender) *SyncWorker {
	return &SyncWorker{
		storage:  storage,
		appender: appender,
	}
}

// HandleSyncMessage processes a single invoice sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.InvoiceSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"action", msg.Action)

	// Deletes have no external representation to update. The sheet is
	// an append-only backup; the row stays.
	if msg.Action == amqp.ActionDeleted {
		slog.InfoContext(ctx, "Skipping deleted invoice", "id", msg.ID)
		return nil
	}

	inv, err := w.storage.GetInvoice(ctx, msg.ID)
	if err != nil {
		// The invoice may have been deleted between the message being
		// published and the worker catching up.
		slog.WarnContext(ctx, "Invoice not found, dropping message",
			"id", msg.ID, "error", err)
		return nil
	}

	ref, err := w.appender.Append(ctx, inv)
	if err != nil {
		return fmt.Errorf("append invoice to sheet: %w", err)
	}

	slog.InfoContext(ctx, "Invoice synced",
		"id", msg.ID,
		"row_ref", ref)
	return nil
}
