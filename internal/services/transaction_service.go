// Package services orchestrates transaction operations across the SQLite
// store and the AMQP statement sync pipeline.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"golang.org/x/sync/errgroup"
)

// SyncPublisher publishes statement sync messages. A nil publisher
// disables the pipeline; operations still succeed locally.
type SyncPublisher interface {
	Publish(ctx context.Context, msg *amqp.SyncMessage) error
}

type TransactionService struct {
	storage   *storage.SQLiteRepository
	publisher SyncPublisher
}

func NewTransactionService(storage *storage.SQLiteRepository, publisher SyncPublisher) *TransactionService {
	return &TransactionService{
		storage:   storage,
		publisher: publisher,
	}
}

// Create validates and persists a new transaction for the owner, then
// queues it for statement sync. Sync failures never fail the request.
func (s *TransactionService) Create(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	t.UserID = userID
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.storage.Create(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.publish(ctx, amqp.NewUpsertMessage(created.ID))
	return created, nil
}

// List returns the owner's transactions matching the filter, most recent first.
func (s *TransactionService) List(ctx context.Context, userID string, f storage.ListFilter) ([]core.Transaction, error) {
	return s.storage.List(ctx, userID, f)
}

// Update applies a partial update to an owner's transaction and queues
// the new state for statement sync.
func (s *TransactionService) Update(ctx context.Context, userID string, id int64, p storage.UpdateParams) (core.Transaction, error) {
	updated, err := s.storage.Update(ctx, userID, id, p)
	if err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, amqp.NewUpsertMessage(updated.ID))
	return updated, nil
}

// Delete removes an owner's transaction permanently and tells the worker
// to drop the mirrored statement row.
func (s *TransactionService) Delete(ctx context.Context, userID string, id int64) error {
	// The dedupe token must be read before the row disappears; the
	// worker needs it to locate the statement row.
	t, err := s.storage.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.storage.Delete(ctx, userID, id); err != nil {
		return err
	}

	s.publish(ctx, amqp.NewDeleteMessage(id, t.UUID))
	return nil
}

// Summarize aggregates the owner's full transaction set: totals, balance
// and the five most recent entries. The two storage reads run concurrently.
func (s *TransactionService) Summarize(ctx context.Context, userID string) (core.Summary, error) {
	var (
		income, expense core.Money
		recent          []core.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		income, expense, err = s.storage.Totals(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.storage.Recent(gctx, userID, core.RecentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Summary{}, fmt.Errorf("summarize transactions: %w", err)
	}

	return core.NewSummary(income, expense, recent), nil
}

// Categories returns the advisory suggestion list for a kind: the
// default suggestions followed by categories the owner has already used.
// The list is never enforced on writes.
func (s *TransactionService) Categories(ctx context.Context, userID string, kind core.Kind) ([]string, error) {
	suggested := core.SuggestedCategories(kind)

	used, err := s.storage.CategoriesUsed(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("list used categories: %w", err)
	}

	seen := make(map[string]bool, len(suggested))
	for _, c := range suggested {
		seen[c] = true
	}
	for _, c := range used {
		if !seen[c] {
			seen[c] = true
			suggested = append(suggested, c)
		}
	}
	return suggested, nil
}

func (s *TransactionService) publish(ctx context.Context, msg *amqp.SyncMessage) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Sync publisher not configured, skipping message", "op", msg.Op, "id", msg.ID)
		return
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		// Local state is authoritative; the startup catch-up pass will
		// pick the record up via its pending sync status.
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"error", err,
			"op", msg.Op,
			"id", msg.ID)
	}
}
