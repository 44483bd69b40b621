package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/google/uuid"
)

const testSecret = "test-secret"

// fakeAPI is an in-memory TransactionAPI with the same ownership and
// ordering semantics as the real service.
type fakeAPI struct {
	transactions   map[int64]core.Transaction
	nextID         int64
	categoryCalls  int
	failSummarize  bool
	failList       bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{transactions: make(map[int64]core.Transaction)}
}

func (f *fakeAPI) Create(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	t.UserID = userID
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	f.nextID++
	t.ID = f.nextID
	t.UUID = uuid.NewString()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	f.transactions[t.ID] = t
	return t, nil
}

func (f *fakeAPI) owned(userID string) []core.Transaction {
	var out []core.Transaction
	for _, t := range f.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakeAPI) List(ctx context.Context, userID string, fl storage.ListFilter) ([]core.Transaction, error) {
	if f.failList {
		return nil, context.DeadlineExceeded
	}
	out := []core.Transaction{}
	for _, t := range f.owned(userID) {
		if fl.Kind != "" && t.Kind != fl.Kind {
			continue
		}
		if !fl.From.IsZero() && t.OccurredAt.Before(fl.From) {
			continue
		}
		if !fl.To.IsZero() && t.OccurredAt.After(fl.To) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeAPI) Update(ctx context.Context, userID string, id int64, p storage.UpdateParams) (core.Transaction, error) {
	t, ok := f.transactions[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, core.ErrNotFound
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.AmountCents != nil {
		t.Amount = core.Money{Cents: *p.AmountCents}
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.OccurredAt != nil {
		t.OccurredAt = *p.OccurredAt
	}
	t.UpdatedAt = time.Now().UTC()
	f.transactions[id] = t
	return t, nil
}

func (f *fakeAPI) Delete(ctx context.Context, userID string, id int64) error {
	t, ok := f.transactions[id]
	if !ok || t.UserID != userID {
		return core.ErrNotFound
	}
	delete(f.transactions, id)
	return nil
}

func (f *fakeAPI) Summarize(ctx context.Context, userID string) (core.Summary, error) {
	if f.failSummarize {
		return core.Summary{}, context.DeadlineExceeded
	}
	var income, expense core.Money
	for _, t := range f.owned(userID) {
		switch t.Kind {
		case core.KindIncome:
			income.Cents += t.Amount.Cents
		case core.KindExpense:
			expense.Cents += t.Amount.Cents
		}
	}
	recent := f.owned(userID)
	if len(recent) > core.RecentLimit {
		recent = recent[:core.RecentLimit]
	}
	return core.NewSummary(income, expense, recent), nil
}

func (f *fakeAPI) Categories(ctx context.Context, userID string, kind core.Kind) ([]string, error) {
	f.categoryCalls++
	return core.SuggestedCategories(kind), nil
}

func newTestServer(t *testing.T) (*Server, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	s := NewServer(":0", api, auth.NewVerifier(testSecret))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, api
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, s *Server, method, target, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	if authz != "" {
		r.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, r)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAPIRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct{ method, target string }{
		{http.MethodGet, "/api/transactions"},
		{http.MethodPost, "/api/transactions"},
		{http.MethodPut, "/api/transactions/1"},
		{http.MethodDelete, "/api/transactions/1"},
		{http.MethodGet, "/api/transactions/summary"},
		{http.MethodGet, "/api/categories?type=expense"},
	}
	for _, tc := range cases {
		rec := doRequest(t, s, tc.method, tc.target, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401", tc.method, tc.target, rec.Code)
		}
		body := decodeBody[map[string]string](t, rec)
		if body["error"] != "Unauthorized" {
			t.Errorf("%s %s body = %v", tc.method, tc.target, body)
		}
	}
}

func TestHealthEndpointsArePublic(t *testing.T) {
	s, _ := newTestServer(t)
	for _, target := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, s, http.MethodGet, target, "", "")
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", target, rec.Code)
		}
	}
}

func TestCreateTransaction(t *testing.T) {
	s, _ := newTestServer(t)
	authz := bearer(t, "user_1")

	rec := doRequest(t, s, http.MethodPost, "/api/transactions", authz,
		`{"type":"income","amount":1234.56,"description":"Salary","category":"Salary","date":"2024-03-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[transactionResponse](t, rec)
	if got.ID == 0 || got.UUID == "" {
		t.Fatalf("missing identifiers: %+v", got)
	}
	if got.UserID != "user_1" || got.Type != "income" || got.Amount != 1234.56 {
		t.Fatalf("wire shape = %+v", got)
	}
	if got.Date != "2024-03-01T00:00:00Z" {
		t.Fatalf("date = %q", got.Date)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	s, _ := newTestServer(t)
	authz := bearer(t, "user_1")

	cases := []struct {
		name, body, wantErr string
	}{
		{"missing fields", `{"type":"income","amount":10}`, "Missing required fields"},
		{"bad type", `{"type":"transfer","amount":10,"description":"x","category":"Other"}`, "Invalid transaction type"},
		{"zero amount", `{"type":"income","amount":0,"description":"x","category":"Other"}`, "Invalid amount"},
		{"negative amount", `{"type":"income","amount":-5,"description":"x","category":"Other"}`, "Invalid amount"},
		{"bad date", `{"type":"income","amount":10,"description":"x","category":"Other","date":"tomorrow"}`, "Invalid date"},
		{"bad json", `{`, "Invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/transactions", authz, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			body := decodeBody[map[string]string](t, rec)
			if body["error"] != tc.wantErr {
				t.Fatalf("error = %q, want %q", body["error"], tc.wantErr)
			}
		})
	}
}

func TestCreateDefaultsDateToNow(t *testing.T) {
	s, _ := newTestServer(t)
	authz := bearer(t, "user_1")

	before := time.Now().UTC().Add(-time.Second)
	rec := doRequest(t, s, http.MethodPost, "/api/transactions", authz,
		`{"type":"expense","amount":5,"description":"coffee","category":"Food"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[transactionResponse](t, rec)
	occurred, err := time.Parse(time.RFC3339, got.Date)
	if err != nil {
		t.Fatalf("parse date %q: %v", got.Date, err)
	}
	if occurred.Before(before) || occurred.After(time.Now().UTC().Add(time.Second)) {
		t.Fatalf("default date %v not near now", occurred)
	}
}

func TestListTransactionsFilters(t *testing.T) {
	s, api := newTestServer(t)
	authz := bearer(t, "user_1")
	ctx := context.Background()

	mk := func(kind core.Kind, cents int64, day string) {
		occurred, _ := time.Parse("2006-01-02", day)
		_, err := api.Create(ctx, "user_1", core.Transaction{
			Kind: kind, Amount: core.Money{Cents: cents},
			Description: "t", Category: "Other", OccurredAt: occurred,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	mk(core.KindIncome, 100000, "2024-01-10")
	mk(core.KindExpense, 40000, "2024-01-15")
	mk(core.KindExpense, 2000, "2024-02-01")

	// Foreign rows never leak into another owner's list.
	if _, err := api.Create(ctx, "user_2", core.Transaction{
		Kind: core.KindExpense, Amount: core.Money{Cents: 777},
		Description: "foreign", Category: "Other", OccurredAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed foreign: %v", err)
	}

	cases := []struct {
		name, target string
		want         int
	}{
		{"all", "/api/transactions", 3},
		{"by type", "/api/transactions?type=expense", 2},
		{"unknown type ignored", "/api/transactions?type=transfer", 3},
		{"from", "/api/transactions?from=2024-01-15", 2},
		{"to inclusive", "/api/transactions?to=2024-01-15", 2},
		{"range", "/api/transactions?from=2024-01-11&to=2024-01-31", 1},
		{"range and type", "/api/transactions?type=expense&from=2024-01-01&to=2024-01-31", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, tc.target, authz, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			got := decodeBody[[]transactionResponse](t, rec)
			if len(got) != tc.want {
				t.Fatalf("len = %d, want %d (%+v)", len(got), tc.want, got)
			}
			for i := 1; i < len(got); i++ {
				if got[i-1].Date < got[i].Date {
					t.Fatalf("not sorted most recent first: %+v", got)
				}
			}
		})
	}

	rec := doRequest(t, s, http.MethodGet, "/api/transactions?from=notadate", authz, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad from date status = %d", rec.Code)
	}
}

func TestUpdateTransaction(t *testing.T) {
	s, api := newTestServer(t)
	authz := bearer(t, "user_1")

	created, err := api.Create(context.Background(), "user_1", core.Transaction{
		Kind: core.KindExpense, Amount: core.Money{Cents: 40000},
		Description: "rent", Category: "Housing", OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doRequest(t, s, http.MethodPut, "/api/transactions/1", authz, `{"amount":450.00,"description":"rent march"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[transactionResponse](t, rec)
	if got.Amount != 450.00 || got.Description != "rent march" {
		t.Fatalf("updated = %+v", got)
	}
	if got.Category != "Housing" || got.Type != "expense" {
		t.Fatalf("untouched fields changed: %+v", got)
	}

	// Foreign record: same 404 as a missing one.
	rec = doRequest(t, s, http.MethodPut, "/api/transactions/1", bearer(t, "user_2"), `{"description":"mine now"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign update status = %d", rec.Code)
	}
	if api.transactions[created.ID].Description != "rent march" {
		t.Fatal("foreign update must not change the record")
	}

	rec = doRequest(t, s, http.MethodPut, "/api/transactions/999", authz, `{"description":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing update status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPut, "/api/transactions/abc", authz, `{"description":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPut, "/api/transactions/1", authz, `{"amount":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount status = %d", rec.Code)
	}
}

func TestDeleteTransaction(t *testing.T) {
	s, api := newTestServer(t)
	authz := bearer(t, "user_1")

	if _, err := api.Create(context.Background(), "user_1", core.Transaction{
		Kind: core.KindExpense, Amount: core.Money{Cents: 500},
		Description: "snack", Category: "Food", OccurredAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doRequest(t, s, http.MethodDelete, "/api/transactions/1", bearer(t, "user_2"), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/transactions/1", authz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["message"] != "Transaction deleted" {
		t.Fatalf("body = %v", body)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/transactions/1", authz, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

func TestSummary(t *testing.T) {
	s, api := newTestServer(t)
	authz := bearer(t, "user_1")
	ctx := context.Background()

	seed := []struct {
		kind  core.Kind
		cents int64
	}{{core.KindIncome, 100000}, {core.KindExpense, 40000}}
	for i, sd := range seed {
		if _, err := api.Create(ctx, "user_1", core.Transaction{
			Kind: sd.kind, Amount: core.Money{Cents: sd.cents},
			Description: "t", Category: "Other",
			OccurredAt: time.Date(2024, 1, 10+i, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/transactions/summary", authz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[summaryResponse](t, rec)
	if got.TotalIncome != 1000 || got.TotalExpense != 400 || got.Balance != 600 {
		t.Fatalf("summary = %+v", got)
	}
	if len(got.RecentTransactions) != 2 || got.RecentTransactions[0].Type != "expense" {
		t.Fatalf("recent = %+v", got.RecentTransactions)
	}

	// Fresh owner: zeros and an empty list, not an error.
	rec = doRequest(t, s, http.MethodGet, "/api/transactions/summary", bearer(t, "user_9"), "")
	got = decodeBody[summaryResponse](t, rec)
	if got.Balance != 0 || len(got.RecentTransactions) != 0 {
		t.Fatalf("empty summary = %+v", got)
	}
}

func TestCategoriesCachedPerUserAndKind(t *testing.T) {
	s, api := newTestServer(t)
	authz := bearer(t, "user_1")

	rec := doRequest(t, s, http.MethodGet, "/api/categories?type=expense", authz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string][]string](t, rec)
	if len(body["categories"]) == 0 {
		t.Fatalf("body = %v", body)
	}

	doRequest(t, s, http.MethodGet, "/api/categories?type=expense", authz, "")
	if api.categoryCalls != 1 {
		t.Fatalf("categoryCalls = %d, want 1 (second hit cached)", api.categoryCalls)
	}

	// A mutation invalidates the suggestion cache for that kind.
	doRequest(t, s, http.MethodPost, "/api/transactions", authz,
		`{"type":"expense","amount":9,"description":"x","category":"New thing"}`)
	doRequest(t, s, http.MethodGet, "/api/categories?type=expense", authz, "")
	if api.categoryCalls != 2 {
		t.Fatalf("categoryCalls = %d, want 2 after invalidation", api.categoryCalls)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/categories", authz, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing type status = %d", rec.Code)
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	s, api := newTestServer(t)
	api.failSummarize = true
	api.failList = true
	authz := bearer(t, "user_1")

	for _, target := range []string{"/api/transactions/summary", "/api/transactions"} {
		rec := doRequest(t, s, http.MethodGet, target, authz, "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("GET %s status = %d", target, rec.Code)
		}
		body := decodeBody[map[string]string](t, rec)
		if body["error"] != "Internal server error" {
			t.Fatalf("GET %s error = %q", target, body["error"])
		}
	}
}
