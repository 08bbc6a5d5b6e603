package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/infra/observability"
	"github.com/finbooks/finbooks-go/internal/port"
)

var allocTracer = otel.Tracer("service/allocation")

// AllocationService maintains the breakdown set of each transaction
// under the ledger invariants: unique categories per transaction, no
// negative amounts, and a split sum never exceeding the transaction
// amount beyond the fixed epsilon.
type AllocationService struct {
	catalog    *CatalogService
	breakdowns port.BreakdownStore
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAllocationService creates an allocation service. Category validity
// checks go through the catalog so they hit its cache.
func NewAllocationService(catalog *CatalogService, breakdowns port.BreakdownStore, metrics *observability.Metrics, logger *zap.Logger) *AllocationService {
	return &AllocationService{
		catalog:    catalog,
		breakdowns: breakdowns,
		metrics:    metrics,
		logger:     logger,
	}
}

// SetBreakdowns validates splits and atomically replaces the breakdown
// set for a transaction. Validation failures never touch the store: the
// whole call is all-or-nothing.
func (s *AllocationService) SetBreakdowns(ctx context.Context, transactionID string, transactionAmount decimal.Decimal, splits []domain.Split) (*domain.AllocationSummary, error) {
	ctx, span := allocTracer.Start(ctx, "AllocationService.SetBreakdowns")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", transactionID),
		attribute.Int("split.count", len(splits)),
	)

	if transactionID == "" {
		return nil, &domain.ErrValidation{Field: "transaction_id", Message: "transaction_id is required"}
	}
	if transactionAmount.IsNegative() {
		return nil, &domain.ErrValidation{Field: "transaction_amount", Message: "transaction amount cannot be negative"}
	}

	known, err := s.knownCategories(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(splits))
	allocated := decimal.Zero
	for _, split := range splits {
		if !known[split.CategoryID] {
			s.metrics.IncrAllocation("rejected")
			return nil, &domain.ErrUnknownCategory{CategoryID: split.CategoryID}
		}
		if seen[split.CategoryID] {
			s.metrics.IncrAllocation("rejected")
			return nil, &domain.ErrDuplicateCategory{CategoryID: split.CategoryID}
		}
		seen[split.CategoryID] = true
		if split.Amount.IsNegative() {
			s.metrics.IncrAllocation("rejected")
			return nil, &domain.ErrNegativeAmount{CategoryID: split.CategoryID, Amount: split.Amount.String()}
		}
		allocated = allocated.Add(split.Amount)
	}

	if allocated.GreaterThan(transactionAmount.Add(domain.AmountEpsilon)) {
		excess := allocated.Sub(transactionAmount)
		s.metrics.IncrAllocation("rejected")
		s.logger.Warn("over-allocated breakdown rejected",
			zap.String("transaction_id", transactionID),
			zap.String("allocated", allocated.String()),
			zap.String("transaction_amount", transactionAmount.String()),
			zap.String("excess", excess.String()),
		)
		return nil, &domain.ErrOverAllocated{TransactionID: transactionID, Excess: excess.String()}
	}

	now := time.Now().UTC()
	rows := make([]domain.Breakdown, 0, len(splits))
	for i, split := range splits {
		rows = append(rows, domain.Breakdown{
			ID:            uuid.New().String(),
			TransactionID: transactionID,
			CategoryID:    split.CategoryID,
			Amount:        split.Amount,
			Notes:         split.Notes,
			// Spread timestamps so creation order survives a sort
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if err := s.breakdowns.ReplaceAll(ctx, transactionID, rows); err != nil {
		s.metrics.IncrStoreError("breakdowns")
		return nil, err
	}

	s.metrics.IncrAllocation("accepted")
	return s.summarize(transactionID, transactionAmount, allocated), nil
}

// GetBreakdowns returns the current breakdowns with resolved category
// names, ordered by creation time. Percent is derived from the passed
// transaction amount on every call; it is never stored.
func (s *AllocationService) GetBreakdowns(ctx context.Context, transactionID string, transactionAmount decimal.Decimal) ([]domain.BreakdownView, error) {
	ctx, span := allocTracer.Start(ctx, "AllocationService.GetBreakdowns")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	rows, err := s.breakdowns.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	names, err := s.categoryNames(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]domain.BreakdownView, 0, len(rows))
	for _, b := range rows {
		view := domain.BreakdownView{
			Breakdown:    b,
			CategoryName: names[b.CategoryID],
		}
		if transactionAmount.IsPositive() {
			view.Percent, _ = b.Amount.Div(transactionAmount).Mul(decimal.NewFromInt(100)).Float64()
		}
		views = append(views, view)
	}
	return views, nil
}

// RemoveBreakdown deletes a single breakdown row and returns the updated
// allocation summary.
func (s *AllocationService) RemoveBreakdown(ctx context.Context, transactionID, breakdownID string, transactionAmount decimal.Decimal) (*domain.AllocationSummary, error) {
	ctx, span := allocTracer.Start(ctx, "AllocationService.RemoveBreakdown")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", transactionID),
		attribute.String("breakdown.id", breakdownID),
	)

	if err := s.breakdowns.DeleteBreakdown(ctx, transactionID, breakdownID); err != nil {
		return nil, err
	}

	return s.Summary(ctx, transactionID, transactionAmount)
}

// Summary recomputes the allocation summary from the persisted rows.
func (s *AllocationService) Summary(ctx context.Context, transactionID string, transactionAmount decimal.Decimal) (*domain.AllocationSummary, error) {
	ctx, span := allocTracer.Start(ctx, "AllocationService.Summary")
	defer span.End()

	rows, err := s.breakdowns.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	allocated := decimal.Zero
	for _, b := range rows {
		allocated = allocated.Add(b.Amount)
	}
	return s.summarize(transactionID, transactionAmount, allocated), nil
}

// RemoveAllForTransaction cascades breakdown removal when the parent
// transaction is deleted by the surrounding application.
func (s *AllocationService) RemoveAllForTransaction(ctx context.Context, transactionID string) error {
	ctx, span := allocTracer.Start(ctx, "AllocationService.RemoveAllForTransaction")
	defer span.End()

	if err := s.breakdowns.ReplaceAll(ctx, transactionID, nil); err != nil {
		return err
	}
	s.logger.Info("breakdowns removed with parent transaction",
		zap.String("transaction_id", transactionID),
	)
	return nil
}

func (s *AllocationService) summarize(transactionID string, transactionAmount, allocated decimal.Decimal) *domain.AllocationSummary {
	remaining := transactionAmount.Sub(allocated)
	return &domain.AllocationSummary{
		TransactionID:  transactionID,
		Allocated:      allocated,
		Remaining:      remaining,
		FullyAllocated: remaining.LessThanOrEqual(domain.AmountEpsilon),
	}
}

func (s *AllocationService) knownCategories(ctx context.Context) (map[string]bool, error) {
	cats, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(cats))
	for _, c := range cats {
		known[c.ID] = true
	}
	return known, nil
}

func (s *AllocationService) categoryNames(ctx context.Context) (map[string]string, error) {
	cats, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}
