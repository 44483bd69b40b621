package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// transactionResponse is the wire shape of a transaction. Amounts travel
// as decimal currency units; cents stay internal.
type transactionResponse struct {
	ID          int64   `json:"id"`
	UUID        string  `json:"uuid"`
	UserID      string  `json:"userId"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Date        string  `json:"date"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func toResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		UUID:        t.UUID,
		UserID:      t.UserID,
		Type:        string(t.Kind),
		Amount:      t.Amount.Units(),
		Description: t.Description,
		Category:    t.Category,
		Date:        t.OccurredAt.UTC().Format(time.RFC3339),
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toResponseList(ts []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toResponse(t))
	}
	return out
}

// transactionRequest carries create and update payloads. On updates every
// field is optional; amount uses json.Number so the decimal text reaches
// the cents parser unmangled.
type transactionRequest struct {
	Type        *string      `json:"type"`
	Amount      *json.Number `json:"amount"`
	Description *string      `json:"description"`
	Category    *string      `json:"category"`
	Date        *string      `json:"date"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var f storage.ListFilter
	q := r.URL.Query()
	if v := q.Get("type"); v != "" {
		// An unrecognized type is ignored rather than rejected so stale
		// client links keep working unfiltered.
		if k, err := core.ParseKind(v); err == nil {
			f.Kind = k
		}
	}
	if v := q.Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date")
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date")
			return
		}
		f.To = endOfDay(t)
	}

	ts, err := s.api.List(r.Context(), identity.UserID, f)
	if err != nil {
		slog.ErrorContext(r.Context(), "List transactions failed", "error", err, "user_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toResponseList(ts))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Type == nil || req.Amount == nil || req.Description == nil || req.Category == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	kind, err := core.ParseKind(*req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction type")
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	occurred := time.Now().UTC()
	if req.Date != nil && *req.Date != "" {
		occurred, err = parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date")
			return
		}
	}

	t := core.Transaction{
		Kind:        kind,
		Amount:      core.Money{Cents: cents},
		Description: sanitizeInput(*req.Description),
		Category:    sanitizeInput(*req.Category),
		OccurredAt:  occurred,
	}

	created, err := s.api.Create(r.Context(), identity.UserID, t)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "Create transaction failed", "error", err, "user_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.invalidateCategories(identity.UserID, created.Kind)
	writeJSON(w, http.StatusCreated, toResponse(created))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var p storage.UpdateParams
	if req.Type != nil {
		kind, err := core.ParseKind(*req.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid transaction type")
			return
		}
		p.Kind = &kind
	}
	if req.Amount != nil {
		cents, err := core.ParseDecimalToCents(req.Amount.String())
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount")
			return
		}
		p.AmountCents = &cents
	}
	if req.Description != nil {
		desc := sanitizeInput(*req.Description)
		if desc == "" {
			writeError(w, http.StatusBadRequest, core.ErrEmptyDescription.Error())
			return
		}
		p.Description = &desc
	}
	if req.Category != nil {
		cat := sanitizeInput(*req.Category)
		if cat == "" {
			writeError(w, http.StatusBadRequest, core.ErrEmptyCategory.Error())
			return
		}
		p.Category = &cat
	}
	if req.Date != nil {
		occurred, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date")
			return
		}
		p.OccurredAt = &occurred
	}

	updated, err := s.api.Update(r.Context(), identity.UserID, id, p)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		slog.ErrorContext(r.Context(), "Update transaction failed", "error", err, "user_id", identity.UserID, "id", id)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.invalidateCategories(identity.UserID, updated.Kind)
	writeJSON(w, http.StatusOK, toResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	if err := s.api.Delete(r.Context(), identity.UserID, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		slog.ErrorContext(r.Context(), "Delete transaction failed", "error", err, "user_id", identity.UserID, "id", id)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.invalidateCategories(identity.UserID, core.KindIncome)
	s.invalidateCategories(identity.UserID, core.KindExpense)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction deleted"})
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidKind) ||
		errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrEmptyDescription) ||
		errors.Is(err, core.ErrEmptyCategory)
}
