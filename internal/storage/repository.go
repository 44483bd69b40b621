package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Sync states for the statement backup pipeline.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

// SQLiteRepository is the transaction store. The connection is opened once
// at startup and closed on shutdown; it is safe for concurrent use.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const transactionColumns = "id, uuid, user_id, kind, amount_cents, description, category, occurred_at, created_at, updated_at"

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var t core.Transaction
	var kind string
	err := row.Scan(&t.ID, &t.UUID, &t.UserID, &kind, &t.Amount.Cents,
		&t.Description, &t.Category, &t.OccurredAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)
	return t, nil
}

// Create persists a new transaction, generating its dedupe token and
// system timestamps. The stored record is returned with its id.
func (r *SQLiteRepository) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	now := time.Now().UTC()
	t.UUID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (uuid, user_id, kind, amount_cents, description, category, occurred_at, created_at, updated_at, sync_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UUID, t.UserID, string(t.Kind), t.Amount.Cents, t.Description, t.Category,
		t.OccurredAt.UTC(), t.CreatedAt, t.UpdatedAt, SyncPending)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	t.OccurredAt = t.OccurredAt.UTC()

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"user_id", t.UserID,
		"kind", t.Kind,
		"amount_cents", t.Amount.Cents)

	return t, nil
}

// ListFilter narrows List results. Zero values mean "no filter".
// From and To are inclusive bounds on the occurrence date.
type ListFilter struct {
	Kind core.Kind
	From time.Time
	To   time.Time
}

// List returns the owner's transactions matching the filter, most recent
// occurrence first. Records sharing an occurrence date are ordered by
// descending id, i.e. reverse creation order.
func (r *SQLiteRepository) List(ctx context.Context, userID string, f ListFilter) ([]core.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE user_id = ?"
	args := []any{userID}

	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(f.Kind))
	}
	if !f.From.IsZero() {
		query += " AND occurred_at >= ?"
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += " AND occurred_at <= ?"
		args = append(args, f.To.UTC())
	}
	query += " ORDER BY occurred_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return transactions, nil
}

// Get returns a single transaction scoped to its owner.
// Returns core.ErrNotFound when absent or owned by another user.
func (r *SQLiteRepository) Get(ctx context.Context, userID string, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND user_id = ?", id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// UpdateParams carries the mutable fields of an update. Nil means
// "leave unchanged".
type UpdateParams struct {
	Kind        *core.Kind
	AmountCents *int64
	Description *string
	Category    *string
	OccurredAt  *time.Time
}

// Update applies a partial update to an owner's transaction and returns
// the updated record. Returns core.ErrNotFound when the owner+id pair
// does not exist; the caller cannot tell foreign records from missing ones.
func (r *SQLiteRepository) Update(ctx context.Context, userID string, id int64, p UpdateParams) (core.Transaction, error) {
	sets := []string{"updated_at = ?", "sync_status = ?"}
	args := []any{time.Now().UTC(), SyncPending}

	if p.Kind != nil {
		sets = append(sets, "kind = ?")
		args = append(args, string(*p.Kind))
	}
	if p.AmountCents != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, *p.AmountCents)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *p.Category)
	}
	if p.OccurredAt != nil {
		sets = append(sets, "occurred_at = ?")
		args = append(args, p.OccurredAt.UTC())
	}

	args = append(args, id, userID)
	res, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.Transaction{}, core.ErrNotFound
	}

	return r.Get(ctx, userID, id)
}

// Delete permanently removes an owner's transaction. No tombstone is kept.
func (r *SQLiteRepository) Delete(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", userID)
	return nil
}

// Totals sums income and expense amounts over the owner's full set,
// ignoring any list filter.
func (r *SQLiteRepository) Totals(ctx context.Context, userID string) (income, expense core.Money, err error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN kind = 'income' THEN amount_cents ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN kind = 'expense' THEN amount_cents ELSE 0 END), 0)
		 FROM transactions WHERE user_id = ?`, userID)
	if err = row.Scan(&income.Cents, &expense.Cents); err != nil {
		return core.Money{}, core.Money{}, fmt.Errorf("sum totals: %w", err)
	}
	return income, expense, nil
}

// Recent returns the owner's most recent transactions by occurrence date.
func (r *SQLiteRepository) Recent(ctx context.Context, userID string, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	defer rows.Close()

	transactions := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return transactions, nil
}

// CategoriesUsed returns the distinct categories an owner has recorded
// for a kind, alphabetically. Feeds the advisory suggestion list.
func (r *SQLiteRepository) CategoriesUsed(ctx context.Context, userID string, kind core.Kind) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT category FROM transactions WHERE user_id = ? AND kind = ? ORDER BY category",
		userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("categories used: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// GetByID returns a transaction without owner scoping. Only the sync
// worker uses this; API reads always go through Get.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// PendingSync returns ids of transactions awaiting statement sync,
// oldest first.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM transactions WHERE sync_status = ? ORDER BY id LIMIT ?", SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("pending sync transactions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending ids: %w", err)
	}
	return ids, nil
}

// MarkSynced marks a transaction as mirrored into the statement.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET sync_status = ? WHERE id = ?", SyncDone, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a transaction whose statement sync failed.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET sync_status = ? WHERE id = ?", SyncError, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}
