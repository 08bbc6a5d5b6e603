// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations: the Supabase adapter in production,
// the in-memory store in tests and local development. The implementation is
// chosen at construction time, never by runtime branching inside calls.
package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbooks/finbooks-go/internal/domain"
)

// CategoryStore persists the category catalog. The store enforces no
// referential checks on delete; blocking or cascading is the caller's
// responsibility.
type CategoryStore interface {
	CreateCategory(ctx context.Context, cat *domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id string, updates map[string]any) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	// ListCategories returns all categories ordered by name, ties broken
	// by creation order.
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// BreakdownStore persists breakdown rows. ReplaceAll swaps the full set
// for one transaction and must be exposed as a single atomic unit: a
// partial delete-without-insert is never observable to readers.
type BreakdownStore interface {
	ReplaceAll(ctx context.Context, transactionID string, rows []domain.Breakdown) error
	ListByTransaction(ctx context.Context, transactionID string) ([]domain.Breakdown, error)
	DeleteBreakdown(ctx context.Context, transactionID, breakdownID string) error
	CountByCategory(ctx context.Context, categoryID string) (int, error)
	DeleteByCategory(ctx context.Context, categoryID string) error
}

// TransactionFilter narrows a candidate pool before matching. Zero-value
// fields are ignored.
type TransactionFilter struct {
	From         time.Time
	To           time.Time
	ApproxAmount decimal.Decimal
	AmountBand   decimal.Decimal
}

// TransactionReader gives read-only access to the expense and income
// transaction pools owned by the surrounding application.
type TransactionReader interface {
	GetTransaction(ctx context.Context, kind domain.TransactionKind, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, kind domain.TransactionKind, filter TransactionFilter) ([]domain.Transaction, error)
}

// LineItemStore persists bank statement line items and their match state.
// UpdateLineItem writes status and matched_ref together; they change as
// one unit or not at all.
type LineItemStore interface {
	GetLineItem(ctx context.Context, id string) (*domain.BankLineItem, error)
	ListLineItems(ctx context.Context, status domain.LineItemStatus) ([]domain.BankLineItem, error)
	ListUnmatched(ctx context.Context) ([]domain.BankLineItem, error)
	UpdateLineItem(ctx context.Context, id string, status domain.LineItemStatus, ref *domain.MatchedRef) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
