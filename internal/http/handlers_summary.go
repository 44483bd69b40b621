package http

import (
	"log/slog"
	"net/http"

	"fintrack/internal/auth"
	"fintrack/internal/core"
)

type summaryResponse struct {
	TotalIncome        float64               `json:"totalIncome"`
	TotalExpense       float64               `json:"totalExpense"`
	Balance            float64               `json:"balance"`
	RecentTransactions []transactionResponse `json:"recentTransactions"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sum, err := s.api.Summarize(r.Context(), identity.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Summary failed", "error", err, "user_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		TotalIncome:        sum.TotalIncome.Units(),
		TotalExpense:       sum.TotalExpense.Units(),
		Balance:            sum.Balance.Units(),
		RecentTransactions: toResponseList(sum.Recent),
	})
}

// handleCategories serves the advisory suggestion list for a kind. The
// result is a hint for form autocompletion, never a constraint on writes.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	kind, err := core.ParseKind(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction type")
		return
	}

	key := categoryCacheKey(identity.UserID, kind)
	if cached, found := s.categoryCache.Get(key); found {
		slog.DebugContext(r.Context(), "Category cache hit", "user_id", identity.UserID, "type", kind)
		writeJSON(w, http.StatusOK, map[string][]string{"categories": cached})
		return
	}

	cats, err := s.api.Categories(r.Context(), identity.UserID, kind)
	if err != nil {
		slog.ErrorContext(r.Context(), "Category suggestions failed", "error", err, "user_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.categoryCache.Set(key, cats)
	writeJSON(w, http.StatusOK, map[string][]string{"categories": cats})
}

func categoryCacheKey(userID string, kind core.Kind) string {
	return userID + ":" + string(kind)
}

func (s *Server) invalidateCategories(userID string, kind core.Kind) {
	s.categoryCache.Delete(categoryCacheKey(userID, kind))
}
