package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/infra/cache"
	"github.com/finbooks/finbooks-go/internal/infra/memstore"
	"github.com/finbooks/finbooks-go/internal/infra/observability"
	"github.com/finbooks/finbooks-go/internal/service"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newAllocationFixture wires an allocation service over a fresh memstore
// and creates the named categories, returning their ids in order.
func newAllocationFixture(t *testing.T, names ...string) (*service.AllocationService, *memstore.Store, []string) {
	t.Helper()

	store := memstore.New()
	catalog := service.NewCatalogService(
		store,
		store,
		cache.New[[]domain.Category](5*time.Minute),
		observability.NewMetrics(),
		zap.NewNop(),
	)
	alloc := service.NewAllocationService(catalog, store, observability.NewMetrics(), zap.NewNop())

	ids := make([]string, 0, len(names))
	for _, name := range names {
		cat, err := catalog.Create(context.Background(), name, "", "")
		if err != nil {
			t.Fatalf("creating category %s: %v", name, err)
		}
		ids = append(ids, cat.ID)
	}
	return alloc, store, ids
}

func TestSetBreakdowns_FullAllocation(t *testing.T) {
	alloc, _, ids := newAllocationFixture(t, "Cat A", "Cat B")

	summary, err := alloc.SetBreakdowns(context.Background(), "tx-1", dec("10000"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("4000")},
		{CategoryID: ids[1], Amount: dec("6000")},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !summary.Allocated.Equal(dec("10000")) {
		t.Errorf("expected allocated 10000, got %s", summary.Allocated)
	}
	if !summary.Remaining.Equal(dec("0")) {
		t.Errorf("expected remaining 0, got %s", summary.Remaining)
	}
	if !summary.FullyAllocated {
		t.Error("expected fully_allocated to be true")
	}
}

func TestSetBreakdowns_PartialAllocation(t *testing.T) {
	alloc, _, ids := newAllocationFixture(t, "Cat A")

	summary, err := alloc.SetBreakdowns(context.Background(), "tx-1", dec("10000"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("4000")},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !summary.Remaining.Equal(dec("6000")) {
		t.Errorf("expected remaining 6000, got %s", summary.Remaining)
	}
	if summary.FullyAllocated {
		t.Error("expected fully_allocated to be false")
	}
}

func TestSetBreakdowns_OverAllocated(t *testing.T) {
	alloc, store, ids := newAllocationFixture(t, "Cat A", "Cat B", "Cat C")
	ctx := context.Background()

	if _, err := alloc.SetBreakdowns(ctx, "tx-1", dec("10000"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("4000")},
		{CategoryID: ids[1], Amount: dec("6000")},
	}); err != nil {
		t.Fatalf("initial allocation failed: %v", err)
	}

	// One unit past the transaction amount is over the epsilon
	_, err := alloc.SetBreakdowns(ctx, "tx-1", dec("10000"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("4000")},
		{CategoryID: ids[1], Amount: dec("6000")},
		{CategoryID: ids[2], Amount: dec("1")},
	})
	var over *domain.ErrOverAllocated
	if !errors.As(err, &over) {
		t.Fatalf("expected ErrOverAllocated, got %v", err)
	}
	if over.Excess != "1" {
		t.Errorf("expected excess 1, got %s", over.Excess)
	}

	// The failed call must not have touched the stored rows
	rows, err := store.ListByTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("listing breakdowns failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected prior 2 rows to survive the rejected call, got %d", len(rows))
	}
}

func TestSetBreakdowns_WithinEpsilon(t *testing.T) {
	alloc, _, ids := newAllocationFixture(t, "Cat A")

	// Exceeding by exactly the epsilon is still accepted
	summary, err := alloc.SetBreakdowns(context.Background(), "tx-1", dec("100"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("100.01")},
	})
	if err != nil {
		t.Fatalf("expected sum within epsilon to pass, got %v", err)
	}
	if !summary.FullyAllocated {
		t.Error("expected fully_allocated")
	}
}

func TestSetBreakdowns_UnknownCategory(t *testing.T) {
	alloc, _, _ := newAllocationFixture(t, "Cat A")

	_, err := alloc.SetBreakdowns(context.Background(), "tx-1", dec("100"), []domain.Split{
		{CategoryID: "no-such-cat", Amount: dec("50")},
	})
	var unknown *domain.ErrUnknownCategory
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestSetBreakdowns_DuplicateCategory(t *testing.T) {
	alloc, _, ids := newAllocationFixture(t, "Cat A")

	_, err := alloc.SetBreakdowns(context.Background(), "tx-1", dec("100"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("40")},
		{CategoryID: ids[0], Amount: dec("30")},
	})
	var dup *domain.ErrDuplicateCategory
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateCategory, got %v", err)
	}
}

func TestSetBreakdowns_NegativeAmount(t *testing.T) {
	alloc, _, ids := newAllocationFixture(t, "Cat A")

	_, err := alloc.SetBreakdowns(context.Background(), "tx-1", dec("100"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("-10")},
	})
	var neg *domain.ErrNegativeAmount
	if !errors.As(err, &neg) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestSetBreakdowns_Idempotent(t *testing.T) {
	alloc, store, ids := newAllocationFixture(t, "Cat A", "Cat B")
	ctx := context.Background()

	splits := []domain.Split{
		{CategoryID: ids[0], Amount: dec("4000")},
		{CategoryID: ids[1], Amount: dec("6000")},
	}

	first, err := alloc.SetBreakdowns(ctx, "tx-1", dec("10000"), splits)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := alloc.SetBreakdowns(ctx, "tx-1", dec("10000"), splits)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if !first.Allocated.Equal(second.Allocated) || first.FullyAllocated != second.FullyAllocated {
		t.Errorf("expected identical summaries, got %+v vs %+v", first, second)
	}

	// Replace semantics: the row count never accumulates across calls
	rows, err := store.ListByTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows after repeated set, got %d", len(rows))
	}
}

func TestSetBreakdowns_EmptyClearsAll(t *testing.T) {
	alloc, _, ids := newAllocationFixture(t, "Cat A")
	ctx := context.Background()

	if _, err := alloc.SetBreakdowns(ctx, "tx-1", dec("100"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("100")},
	}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	summary, err := alloc.SetBreakdowns(ctx, "tx-1", dec("100"), nil)
	if err != nil {
		t.Fatalf("clearing failed: %v", err)
	}
	if !summary.Allocated.Equal(dec("0")) {
		t.Errorf("expected allocated 0 after clear, got %s", summary.Allocated)
	}
}

func TestGetBreakdowns_ViewsWithNamesAndPercent(t *testing.T) {
	alloc, _, ids := newAllocationFixture(t, "Cat A", "Cat B")
	ctx := context.Background()

	if _, err := alloc.SetBreakdowns(ctx, "tx-1", dec("10000"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("4000"), Notes: "deposit"},
		{CategoryID: ids[1], Amount: dec("6000")},
	}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	views, err := alloc.GetBreakdowns(ctx, "tx-1", dec("10000"))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}

	// Creation order is preserved
	if views[0].CategoryName != "Cat A" || views[1].CategoryName != "Cat B" {
		t.Errorf("expected names in creation order, got %s / %s", views[0].CategoryName, views[1].CategoryName)
	}
	if views[0].Percent != 40 {
		t.Errorf("expected 40 percent, got %f", views[0].Percent)
	}
	if views[1].Percent != 60 {
		t.Errorf("expected 60 percent, got %f", views[1].Percent)
	}
	if views[0].Notes != "deposit" {
		t.Errorf("expected notes to round-trip, got '%s'", views[0].Notes)
	}
}

func TestRemoveBreakdown_UpdatesSummary(t *testing.T) {
	alloc, store, ids := newAllocationFixture(t, "Cat A", "Cat B")
	ctx := context.Background()

	if _, err := alloc.SetBreakdowns(ctx, "tx-1", dec("10000"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("4000")},
		{CategoryID: ids[1], Amount: dec("6000")},
	}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	rows, err := store.ListByTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}

	summary, err := alloc.RemoveBreakdown(ctx, "tx-1", rows[0].ID, dec("10000"))
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if !summary.Allocated.Equal(dec("6000")) {
		t.Errorf("expected allocated 6000 after removal, got %s", summary.Allocated)
	}
	if summary.FullyAllocated {
		t.Error("expected fully_allocated false after removal")
	}
}

func TestRemoveBreakdown_NotFound(t *testing.T) {
	alloc, _, _ := newAllocationFixture(t, "Cat A")

	_, err := alloc.RemoveBreakdown(context.Background(), "tx-1", "missing", dec("100"))
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveAllForTransaction(t *testing.T) {
	alloc, store, ids := newAllocationFixture(t, "Cat A")
	ctx := context.Background()

	if _, err := alloc.SetBreakdowns(ctx, "tx-1", dec("100"), []domain.Split{
		{CategoryID: ids[0], Amount: dec("100")},
	}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if err := alloc.RemoveAllForTransaction(ctx, "tx-1"); err != nil {
		t.Fatalf("remove all failed: %v", err)
	}

	rows, err := store.ListByTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}
