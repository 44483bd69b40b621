package sheets

import (
	"context"

	"fintrack/internal/core"
)

// StatementWriter mirrors transactions into an external statement
// document. Rows are keyed by the transaction's dedupe token so upserts
// and deletes stay idempotent.
type StatementWriter interface {
	// AppendTransaction writes or replaces the row for a transaction.
	AppendTransaction(ctx context.Context, t core.Transaction) error

	// DeleteTransaction removes the row carrying the given dedupe token.
	// Deleting an absent row is not an error.
	DeleteTransaction(ctx context.Context, uuid string) error
}
