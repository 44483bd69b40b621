package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

type (
	// Kind classifies a transaction as money coming in or going out.
	Kind string

	Money struct {
		Cents int64
	}

	// Transaction is the single persisted entity: one financial event
	// belonging to exactly one user.
	Transaction struct {
		ID          int64
		UUID        string // dedupe token, unique per record
		UserID      string
		Kind        Kind
		Amount      Money
		Description string
		Category    string
		OccurredAt  time.Time
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

var (
	ErrNotFound         = errors.New("transaction not found")
	ErrInvalidKind      = errors.New("invalid transaction type")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
)

// ParseKind validates the wire value of a transaction type.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindIncome, KindExpense:
		return Kind(s), nil
	}
	return "", ErrInvalidKind
}

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	// Categories are advisory: any non-empty free text is accepted,
	// membership in the suggested lists is deliberately not checked.
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if t.OccurredAt.IsZero() {
		return errors.New("occurred date cannot be zero")
	}
	return nil
}

// Suggested category lists shown by the UI per kind. Free text outside
// these lists is still valid.
var (
	incomeCategories  = []string{"Salary", "Freelance", "Investment", "Business", "Rental", "Other"}
	expenseCategories = []string{"Food", "Transport", "Housing", "Utilities", "Entertainment", "Health", "Education", "Shopping", "Other"}
)

// SuggestedCategories returns the advisory category list for a kind.
func SuggestedCategories(k Kind) []string {
	var src []string
	switch k {
	case KindIncome:
		src = incomeCategories
	case KindExpense:
		src = expenseCategories
	default:
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
