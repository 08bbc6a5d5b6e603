package service

import (
	"context"
	"iter"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/infra/observability"
	"github.com/finbooks/finbooks-go/internal/port"
)

var reconTracer = otel.Tracer("service/reconcile")

// MatchTolerances bound how far apart a bank line item and a candidate
// transaction may be and still auto-match. Both comparisons are strict:
// a distance exactly equal to the tolerance is excluded.
type MatchTolerances struct {
	Amount decimal.Decimal
	Days   int
}

// ReconcileService pairs bank statement line items with expense/income
// transactions and manages the per-item match lifecycle.
//
// When several candidates qualify for one line item, the one with the
// smallest combined normalized distance wins:
//
//	score = |Δamount|/toleranceAmount + |Δdays|/toleranceDays
//
// Equal scores fall back to pool iteration order. The tie-break is
// deterministic and covered by tests.
type ReconcileService struct {
	transactions port.TransactionReader
	items        port.LineItemStore
	tolerances   MatchTolerances
	maxParallel  int
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewReconcileService creates a reconciliation service.
func NewReconcileService(transactions port.TransactionReader, items port.LineItemStore, tolerances MatchTolerances, maxParallel int, metrics *observability.Metrics, logger *zap.Logger) *ReconcileService {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &ReconcileService{
		transactions: transactions,
		items:        items,
		tolerances:   tolerances,
		maxParallel:  maxParallel,
		metrics:      metrics,
		logger:       logger,
	}
}

// poolFor selects the candidate pool by statement direction: money
// leaving the account reconciles against expenses, money arriving
// against income.
func poolFor(direction domain.Direction) domain.TransactionKind {
	if direction == domain.DirectionDebit {
		return domain.KindExpense
	}
	return domain.KindIncome
}

// qualifies applies the tolerance predicate shared by AutoMatch and
// CandidatesFor.
func (s *ReconcileService) qualifies(item domain.BankLineItem, tx domain.Transaction) bool {
	amountDist := tx.Amount.Sub(item.Amount).Abs()
	if !amountDist.LessThan(s.tolerances.Amount) {
		return false
	}
	return s.dayDistance(item.Date, tx.Date) < float64(s.tolerances.Days)
}

func (s *ReconcileService) dayDistance(a, b time.Time) float64 {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff.Hours() / 24
}

// score is the combined normalized distance; lower is closer.
func (s *ReconcileService) score(item domain.BankLineItem, tx domain.Transaction) float64 {
	amountDist, _ := tx.Amount.Sub(item.Amount).Abs().Div(s.tolerances.Amount).Float64()
	dateDist := s.dayDistance(item.Date, tx.Date) / float64(s.tolerances.Days)
	return amountDist + dateDist
}

// bestCandidate scans the pool in order and keeps the qualifying
// candidate with the lowest score. Strict comparison preserves pool
// order on ties. Returns nil when nothing qualifies.
func (s *ReconcileService) bestCandidate(item domain.BankLineItem, kind domain.TransactionKind, pool []domain.Transaction) *domain.MatchCandidate {
	var best *domain.MatchCandidate
	for _, tx := range pool {
		if !s.qualifies(item, tx) {
			continue
		}
		score := s.score(item, tx)
		if best == nil || score < best.Score {
			best = &domain.MatchCandidate{
				LineItemID:    item.ID,
				TransactionID: tx.ID,
				Kind:          kind,
				Score:         score,
			}
		}
	}
	return best
}

// AutoMatch runs one matching pass over all unmatched line items and
// returns the count of newly matched items. Items already matched or
// ignored are never touched. Candidate scoring is read-only and runs in
// parallel; the state writes are committed serially so no item can be
// claimed by two concurrent passes.
func (s *ReconcileService) AutoMatch(ctx context.Context) (int, error) {
	ctx, span := reconTracer.Start(ctx, "ReconcileService.AutoMatch")
	defer span.End()

	items, err := s.items.ListUnmatched(ctx)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	pools, err := s.loadPools(ctx, items)
	if err != nil {
		return 0, err
	}

	// Each item's search is independent: items do not compete for
	// candidates, so processing order cannot change the result
	candidates := make([]*domain.MatchCandidate, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			kind := poolFor(item.Direction)
			candidates[i] = s.bestCandidate(item, kind, pools[kind])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	matched := 0
	for i, cand := range candidates {
		if cand == nil {
			s.metrics.IncrAutoMatch("unmatched")
			continue
		}
		ref := &domain.MatchedRef{TransactionID: cand.TransactionID, Kind: cand.Kind}
		if err := s.items.UpdateLineItem(ctx, cand.LineItemID, domain.StatusMatched, ref); err != nil {
			s.metrics.IncrStoreError("line_items")
			return matched, err
		}
		matched++
		s.metrics.IncrAutoMatch("matched")
		s.logger.Debug("line item auto-matched",
			zap.String("line_item_id", cand.LineItemID),
			zap.String("transaction_id", cand.TransactionID),
			zap.String("kind", string(cand.Kind)),
			zap.Float64("score", cand.Score),
			zap.String("line_item_amount", items[i].Amount.String()),
		)
	}

	s.logger.Info("auto-match pass complete",
		zap.Int("items_scanned", len(items)),
		zap.Int("items_matched", matched),
	)
	return matched, nil
}

// loadPools materializes both candidate pools once per pass, narrowed to
// the date window the items could possibly match in.
func (s *ReconcileService) loadPools(ctx context.Context, items []domain.BankLineItem) (map[domain.TransactionKind][]domain.Transaction, error) {
	var from, to time.Time
	for _, item := range items {
		if from.IsZero() || item.Date.Before(from) {
			from = item.Date
		}
		if to.IsZero() || item.Date.After(to) {
			to = item.Date
		}
	}
	window := time.Duration(s.tolerances.Days) * 24 * time.Hour
	filter := port.TransactionFilter{From: from.Add(-window), To: to.Add(window)}

	pools := make(map[domain.TransactionKind][]domain.Transaction, 2)
	for _, kind := range []domain.TransactionKind{domain.KindExpense, domain.KindIncome} {
		pool, err := s.transactions.ListTransactions(ctx, kind, filter)
		if err != nil {
			s.metrics.IncrStoreError("transactions")
			return nil, err
		}
		pools[kind] = pool
	}
	return pools, nil
}

// ManualMatch pairs a line item with a transaction unconditionally,
// regardless of the item's prior state and without any amount or date
// constraint. Both ids must exist.
func (s *ReconcileService) ManualMatch(ctx context.Context, lineItemID, transactionID string, kind domain.TransactionKind) error {
	ctx, span := reconTracer.Start(ctx, "ReconcileService.ManualMatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("line_item.id", lineItemID),
		attribute.String("transaction.id", transactionID),
	)

	if _, err := s.items.GetLineItem(ctx, lineItemID); err != nil {
		return err
	}
	if _, err := s.transactions.GetTransaction(ctx, kind, transactionID); err != nil {
		return err
	}

	ref := &domain.MatchedRef{TransactionID: transactionID, Kind: kind}
	if err := s.items.UpdateLineItem(ctx, lineItemID, domain.StatusMatched, ref); err != nil {
		return err
	}

	s.logger.Info("line item manually matched",
		zap.String("line_item_id", lineItemID),
		zap.String("transaction_id", transactionID),
		zap.String("kind", string(kind)),
	)
	return nil
}

// Unmatch returns a line item to the unmatched state, clearing its
// reference. Used to undo a wrong match before re-running a pass.
func (s *ReconcileService) Unmatch(ctx context.Context, lineItemID string) error {
	ctx, span := reconTracer.Start(ctx, "ReconcileService.Unmatch")
	defer span.End()

	if _, err := s.items.GetLineItem(ctx, lineItemID); err != nil {
		return err
	}
	return s.items.UpdateLineItem(ctx, lineItemID, domain.StatusUnmatched, nil)
}

// Ignore marks a line item as ignored, clearing any matched reference.
// Ignored items are skipped by AutoMatch but can still be manually
// re-engaged later.
func (s *ReconcileService) Ignore(ctx context.Context, lineItemID string) error {
	ctx, span := reconTracer.Start(ctx, "ReconcileService.Ignore")
	defer span.End()

	if _, err := s.items.GetLineItem(ctx, lineItemID); err != nil {
		return err
	}
	return s.items.UpdateLineItem(ctx, lineItemID, domain.StatusIgnored, nil)
}

// CandidatesFor returns a lazy, finite, restartable sequence of the
// transactions that qualify for a line item under the same tolerance
// predicate AutoMatch uses, in pool order, for human review. It mutates
// nothing; ranging over the sequence again re-runs the filter.
func (s *ReconcileService) CandidatesFor(ctx context.Context, lineItemID string) (iter.Seq[domain.Transaction], error) {
	ctx, span := reconTracer.Start(ctx, "ReconcileService.CandidatesFor")
	defer span.End()
	span.SetAttributes(attribute.String("line_item.id", lineItemID))

	item, err := s.items.GetLineItem(ctx, lineItemID)
	if err != nil {
		return nil, err
	}

	kind := poolFor(item.Direction)
	window := time.Duration(s.tolerances.Days) * 24 * time.Hour
	pool, err := s.transactions.ListTransactions(ctx, kind, port.TransactionFilter{
		From: item.Date.Add(-window),
		To:   item.Date.Add(window),
	})
	if err != nil {
		return nil, err
	}

	return func(yield func(domain.Transaction) bool) {
		for _, tx := range pool {
			if !s.qualifies(*item, tx) {
				continue
			}
			if !yield(tx) {
				return
			}
		}
	}, nil
}

// ListLineItems returns line items, optionally filtered by status.
// An empty status means all.
func (s *ReconcileService) ListLineItems(ctx context.Context, status domain.LineItemStatus) ([]domain.BankLineItem, error) {
	ctx, span := reconTracer.Start(ctx, "ReconcileService.ListLineItems")
	defer span.End()

	if status != "" && status != domain.StatusUnmatched && status != domain.StatusMatched && status != domain.StatusIgnored {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown status " + string(status)}
	}
	return s.items.ListLineItems(ctx, status)
}

// Summary derives the reconciliation statistics from the current line
// item set. It holds no state of its own and is safe to call at any
// time. MatchRate is 0 when there are no items, never a division fault.
func (s *ReconcileService) Summary(ctx context.Context) (*domain.ReconciliationSummary, error) {
	ctx, span := reconTracer.Start(ctx, "ReconcileService.Summary")
	defer span.End()

	items, err := s.items.ListLineItems(ctx, "")
	if err != nil {
		return nil, err
	}

	summary := &domain.ReconciliationSummary{
		Total:          len(items),
		MatchedDebits:  decimal.Zero,
		MatchedCredits: decimal.Zero,
	}
	for _, item := range items {
		switch item.Status {
		case domain.StatusMatched:
			summary.MatchedCount++
			if item.Direction == domain.DirectionDebit {
				summary.MatchedDebits = summary.MatchedDebits.Add(item.Amount)
			} else {
				summary.MatchedCredits = summary.MatchedCredits.Add(item.Amount)
			}
		case domain.StatusIgnored:
			summary.IgnoredCount++
		default:
			summary.UnmatchedCount++
		}
	}
	if summary.Total > 0 {
		summary.MatchRate = float64(summary.MatchedCount) / float64(summary.Total)
	}
	return summary, nil
}
