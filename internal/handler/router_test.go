package handler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/handler"
	"github.com/finbooks/finbooks-go/internal/infra/cache"
	"github.com/finbooks/finbooks-go/internal/infra/memstore"
	"github.com/finbooks/finbooks-go/internal/infra/observability"
	"github.com/finbooks/finbooks-go/internal/service"
)

// newTestRouter wires the full stack over an in-memory store.
func newTestRouter(store *memstore.Store) http.Handler {
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	catalog := service.NewCatalogService(
		store,
		store,
		cache.New[[]domain.Category](5*time.Minute),
		metrics,
		logger,
	)
	alloc := service.NewAllocationService(catalog, store, metrics, logger)
	recon := service.NewReconcileService(
		store,
		store,
		service.MatchTolerances{Amount: decimal.NewFromInt(500), Days: 7},
		4,
		metrics,
		logger,
	)
	return handler.NewRouter(catalog, alloc, recon, metrics, logger)
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(memstore.New())

	rec := doRequest(t, router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := newTestRouter(memstore.New())

	rec := doRequest(t, router, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(memstore.New())

	rec := doRequest(t, router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	router := newTestRouter(memstore.New())

	rec := doRequest(t, router, http.MethodPost, "/v1/categories",
		`{"name":"Travel","description":"flights"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var created domain.Category
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding created category: %v", err)
	}

	// Duplicate name conflicts
	rec = doRequest(t, router, http.MethodPost, "/v1/categories", `{"name":"Travel"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate name, got %d", rec.Code)
	}

	// Update
	rec = doRequest(t, router, http.MethodPut, "/v1/categories/"+created.ID,
		`{"description":"flights and hotels"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on update, got %d: %s", rec.Code, rec.Body)
	}

	// List
	rec = doRequest(t, router, http.MethodGet, "/v1/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on list, got %d", rec.Code)
	}
	var listResp struct {
		Categories []domain.Category `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(listResp.Categories) != 1 {
		t.Errorf("expected 1 category, got %d", len(listResp.Categories))
	}

	// Delete
	rec = doRequest(t, router, http.MethodDelete, "/v1/categories/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 on delete, got %d", rec.Code)
	}
}

func TestCreateCategory_EmptyName(t *testing.T) {
	router := newTestRouter(memstore.New())

	rec := doRequest(t, router, http.MethodPost, "/v1/categories", `{"name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteCategory_InUseAndCascade(t *testing.T) {
	store := memstore.New()
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodPost, "/v1/categories", `{"name":"Software"}`)
	var cat domain.Category
	json.Unmarshal(rec.Body.Bytes(), &cat)

	body := fmt.Sprintf(`{"transaction_amount":"100","splits":[{"category_id":"%s","amount":"60"}]}`, cat.ID)
	rec = doRequest(t, router, http.MethodPut, "/v1/transactions/tx-1/breakdowns", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 setting breakdowns, got %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, router, http.MethodDelete, "/v1/categories/"+cat.ID, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while referenced, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, "/v1/categories/"+cat.ID+"?cascade=true", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 with cascade, got %d: %s", rec.Code, rec.Body)
	}
}

func TestSetBreakdowns_OverAllocatedRejected(t *testing.T) {
	router := newTestRouter(memstore.New())

	rec := doRequest(t, router, http.MethodPost, "/v1/categories", `{"name":"Cat A"}`)
	var cat domain.Category
	json.Unmarshal(rec.Body.Bytes(), &cat)

	body := fmt.Sprintf(`{"transaction_amount":"100","splits":[{"category_id":"%s","amount":"150"}]}`, cat.ID)
	rec = doRequest(t, router, http.MethodPut, "/v1/transactions/tx-1/breakdowns", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for over-allocation, got %d: %s", rec.Code, rec.Body)
	}
}

func TestSetBreakdowns_UnknownCategory(t *testing.T) {
	router := newTestRouter(memstore.New())

	body := `{"transaction_amount":"100","splits":[{"category_id":"ghost","amount":"50"}]}`
	rec := doRequest(t, router, http.MethodPut, "/v1/transactions/tx-1/breakdowns", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unknown category, got %d: %s", rec.Code, rec.Body)
	}
}

func TestGetBreakdowns_WithSummary(t *testing.T) {
	router := newTestRouter(memstore.New())

	rec := doRequest(t, router, http.MethodPost, "/v1/categories", `{"name":"Cat A"}`)
	var cat domain.Category
	json.Unmarshal(rec.Body.Bytes(), &cat)

	body := fmt.Sprintf(`{"transaction_amount":"10000","splits":[{"category_id":"%s","amount":"4000"}]}`, cat.ID)
	doRequest(t, router, http.MethodPut, "/v1/transactions/tx-1/breakdowns", body)

	rec = doRequest(t, router, http.MethodGet, "/v1/transactions/tx-1/breakdowns?transaction_amount=10000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Breakdowns []domain.BreakdownView    `json:"breakdowns"`
		Summary    *domain.AllocationSummary `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Breakdowns) != 1 {
		t.Fatalf("expected 1 breakdown, got %d", len(resp.Breakdowns))
	}
	if resp.Breakdowns[0].Percent != 40 {
		t.Errorf("expected 40 percent, got %f", resp.Breakdowns[0].Percent)
	}
	if resp.Summary == nil || resp.Summary.FullyAllocated {
		t.Errorf("expected partial summary, got %+v", resp.Summary)
	}
}

func TestAutoMatchAndSummary(t *testing.T) {
	store := memstore.New()
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store.SeedTransaction(domain.KindExpense, domain.Transaction{
		ID: "exp-1", Amount: decimal.NewFromInt(5050), Date: date.AddDate(0, 0, 2),
	})
	store.SeedLineItem(domain.BankLineItem{
		ID: "item-1", Amount: decimal.NewFromInt(5000), Date: date,
		Direction: domain.DirectionDebit, Status: domain.StatusUnmatched,
	})
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodPost, "/v1/reconciliation/auto-match", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var matchResp struct {
		Matched int `json:"matched"`
	}
	json.Unmarshal(rec.Body.Bytes(), &matchResp)
	if matchResp.Matched != 1 {
		t.Errorf("expected 1 match, got %d", matchResp.Matched)
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/reconciliation/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary domain.ReconciliationSummary
	json.Unmarshal(rec.Body.Bytes(), &summary)
	if summary.MatchedCount != 1 || summary.Total != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestManualMatch_Validation(t *testing.T) {
	store := memstore.New()
	store.SeedLineItem(domain.BankLineItem{
		ID: "item-1", Amount: decimal.NewFromInt(10),
		Date:      time.Now().UTC(),
		Direction: domain.DirectionDebit, Status: domain.StatusUnmatched,
	})
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodPost, "/v1/reconciliation/line-items/item-1/match",
		`{"transaction_id":"","transaction_kind":"expense"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing transaction_id, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliation/line-items/item-1/match",
		`{"transaction_id":"tx-1","transaction_kind":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad kind, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliation/line-items/item-1/match",
		`{"transaction_id":"no-such-tx","transaction_kind":"expense"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing transaction, got %d", rec.Code)
	}
}

func TestUnmatchAndIgnore(t *testing.T) {
	store := memstore.New()
	store.SeedLineItem(domain.BankLineItem{
		ID: "item-1", Amount: decimal.NewFromInt(10),
		Date:      time.Now().UTC(),
		Direction: domain.DirectionDebit, Status: domain.StatusMatched,
		MatchedRef: &domain.MatchedRef{TransactionID: "exp-1", Kind: domain.KindExpense},
	})
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodPost, "/v1/reconciliation/line-items/item-1/unmatch", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on unmatch, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliation/line-items/item-1/ignore", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on ignore, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/v1/reconciliation/line-items/ghost/ignore", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown item, got %d", rec.Code)
	}
}

func TestListLineItems_StatusFilter(t *testing.T) {
	store := memstore.New()
	now := time.Now().UTC()
	store.SeedLineItem(domain.BankLineItem{ID: "a", Amount: decimal.NewFromInt(1), Date: now, Direction: domain.DirectionDebit, Status: domain.StatusUnmatched})
	store.SeedLineItem(domain.BankLineItem{ID: "b", Amount: decimal.NewFromInt(2), Date: now, Direction: domain.DirectionDebit, Status: domain.StatusIgnored})
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodGet, "/v1/reconciliation/line-items?status=ignored", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		LineItems []domain.BankLineItem `json:"line_items"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.LineItems) != 1 || resp.LineItems[0].ID != "b" {
		t.Errorf("expected only ignored item, got %+v", resp.LineItems)
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/reconciliation/line-items?status=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestCandidates(t *testing.T) {
	store := memstore.New()
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store.SeedTransaction(domain.KindExpense, domain.Transaction{
		ID: "exp-1", Amount: decimal.NewFromInt(5050), Date: date,
	})
	store.SeedLineItem(domain.BankLineItem{
		ID: "item-1", Amount: decimal.NewFromInt(5000), Date: date,
		Direction: domain.DirectionDebit, Status: domain.StatusUnmatched,
	})
	router := newTestRouter(store)

	rec := doRequest(t, router, http.MethodGet, "/v1/reconciliation/line-items/item-1/candidates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Candidates []domain.Transaction `json:"candidates"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Candidates) != 1 || resp.Candidates[0].ID != "exp-1" {
		t.Errorf("expected [exp-1], got %+v", resp.Candidates)
	}
}

func TestReconciliationMetricsSnapshot(t *testing.T) {
	router := newTestRouter(memstore.New())

	rec := doRequest(t, router, http.MethodGet, "/v1/metrics/reconciliation", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap observability.MatcherSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
}
