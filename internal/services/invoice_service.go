package services

import (
	"context"
	"fmt"
	"log/slog"

	"summa/internal/amqp"
	"summa/internal/core"
	applog "summa/internal/log"
	"summa/internal/storage"
)

// SyncPublisher publishes invoice change notifications.
type SyncPublisher interface {
	PublishInvoiceSync(ctx context.Context, id int64, action string) error
}

// InvoiceService orchestrates invoice operations across SQLite and AMQP.
// Writes go to SQLite first; sync messages are best effort and never
// fail the request.
type InvoiceService struct {
	storage   *storage.SQLiteRepository
	publisher SyncPublisher
}

func NewInvoiceService(storage *storage.SQLiteRepository, publisher SyncPublisher) *InvoiceService {
	return &InvoiceService{
		storage:   storage,
		publisher: publisher,
	}
}

// CreateInvoice saves an invoice locally and publishes a sync message.
func (s *InvoiceService) CreateInvoice(ctx context.Context, inv core.Invoice) (int64, error) {
	id, err := s.storage.CreateInvoice(ctx, inv)
	if err != nil {
		return 0, fmt.Errorf("save invoice: %w", err)
	}

	s.publish(ctx, id, amqp.ActionCreated)
	return id, nil
}

// UpdateInvoice rewrites an invoice locally and publishes a sync message.
func (s *InvoiceService) UpdateInvoice(ctx context.Context, id int64, inv core.Invoice) error {
	if err := s.storage.UpdateInvoice(ctx, id, inv); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}

	s.publish(ctx, id, amqp.ActionUpdated)
	return nil
}

// DeleteInvoice soft deletes an invoice locally and publishes a delete message.
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id int64) error {
	if err := s.storage.SoftDeleteInvoice(ctx, id); err != nil {
		return fmt.Errorf("soft delete invoice: %w", err)
	}

	s.publish(ctx, id, amqp.ActionDeleted)
	return nil
}

// BulkUpdate applies a store/category change to a set of invoices and
// publishes one sync message per touched invoice.
func (s *InvoiceService) BulkUpdate(ctx context.Context, ids []int64, store string, category *string) (int64, error) {
	n, err := s.storage.BulkUpdate(ctx, ids, store, category)
	if err != nil {
		return 0, fmt.Errorf("bulk update: %w", err)
	}

	for _, id := range ids {
		s.publish(ctx, id, amqp.ActionUpdated)
	}
	return n, nil
}

// BulkDelete soft deletes a set of invoices.
func (s *InvoiceService) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	n, err := s.storage.BulkDelete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}

	for _, id := range ids {
		s.publish(ctx, id, amqp.ActionDeleted)
	}
	return n, nil
}

func (s *InvoiceService) publish(ctx context.Context, id int64, action string) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message")
		return
	}
	if err := s.publisher.PublishInvoiceSync(ctx, id, action); err != nil {
		// The local write already succeeded, the worker will catch up
		// next time a message for this invoice goes through.
		fields := applog.NewFields().
			WithOperation(action).
			WithError(err).
			WithComponent(applog.ComponentInvoice)
		fields[applog.FieldInvoiceID] = id
		slog.ErrorContext(ctx, "Failed to publish sync message", fields.ToSlice()...)
	}
}

// Close closes the underlying storage.
func (s *InvoiceService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close invoice service: %w", err)
		}
	}
	return nil
}
