// Package memstore is the in-memory implementation of the store ports.
// It backs tests and local development (USE_SUPABASE=false) with the
// exact contract the Supabase adapter provides, so services never branch
// on which backend they talk to.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/port"
)

// Store holds all collections behind one mutex. Write operations are
// serialized, which also gives ReplaceAll its required atomicity: a
// reader either sees the old breakdown set or the new one.
type Store struct {
	mu sync.RWMutex

	categories map[string]domain.Category
	catSeq     map[string]int // creation order, for stable name ties

	breakdowns map[string][]domain.Breakdown // keyed by transaction id

	transactions map[domain.TransactionKind]map[string]domain.Transaction
	txOrder      map[domain.TransactionKind][]string // pool iteration order

	lineItems map[string]domain.BankLineItem
	itemOrder []string

	seq int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		categories: make(map[string]domain.Category),
		catSeq:     make(map[string]int),
		breakdowns: make(map[string][]domain.Breakdown),
		transactions: map[domain.TransactionKind]map[string]domain.Transaction{
			domain.KindExpense: {},
			domain.KindIncome:  {},
		},
		txOrder:   make(map[domain.TransactionKind][]string),
		lineItems: make(map[string]domain.BankLineItem),
	}
}

// ============================================================
// port.CategoryStore
// ============================================================

func (s *Store) CreateCategory(_ context.Context, cat *domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.Name == cat.Name {
			return nil, &domain.ErrDuplicateName{Name: cat.Name}
		}
	}

	s.seq++
	stored := *cat
	s.categories[stored.ID] = stored
	s.catSeq[stored.ID] = s.seq

	out := stored
	return &out, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cat, ok := s.categories[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "category", ID: id}
	}
	out := cat
	return &out, nil
}

func (s *Store) GetCategoryByName(_ context.Context, name string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cat := range s.categories {
		if cat.Name == name {
			out := cat
			return &out, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "category", ID: name}
}

func (s *Store) UpdateCategory(_ context.Context, id string, updates map[string]any) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.categories[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "category", ID: id}
	}

	if name, ok := updates["name"].(string); ok {
		for otherID, other := range s.categories {
			if otherID != id && other.Name == name {
				return nil, &domain.ErrDuplicateName{Name: name}
			}
		}
		cat.Name = name
	}
	if desc, ok := updates["description"].(string); ok {
		cat.Description = desc
	}
	if dept, ok := updates["department_id"].(string); ok {
		cat.DepartmentID = dept
	}

	s.categories[id] = cat
	out := cat
	return &out, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return &domain.ErrNotFound{Resource: "category", ID: id}
	}
	delete(s.categories, id)
	delete(s.catSeq, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, cat := range s.categories {
		out = append(out, cat)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return s.catSeq[out[i].ID] < s.catSeq[out[j].ID]
	})
	return out, nil
}

// ============================================================
// port.BreakdownStore
// ============================================================

func (s *Store) ReplaceAll(_ context.Context, transactionID string, rows []domain.Breakdown) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make([]domain.Breakdown, len(rows))
	copy(replacement, rows)
	s.breakdowns[transactionID] = replacement
	return nil
}

func (s *Store) ListByTransaction(_ context.Context, transactionID string) ([]domain.Breakdown, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.breakdowns[transactionID]
	out := make([]domain.Breakdown, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeleteBreakdown(_ context.Context, transactionID, breakdownID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.breakdowns[transactionID]
	for i, b := range rows {
		if b.ID == breakdownID {
			s.breakdowns[transactionID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "breakdown", ID: breakdownID}
}

func (s *Store) CountByCategory(_ context.Context, categoryID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rows := range s.breakdowns {
		for _, b := range rows {
			if b.CategoryID == categoryID {
				count++
			}
		}
	}
	return count, nil
}

func (s *Store) DeleteByCategory(_ context.Context, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for txID, rows := range s.breakdowns {
		kept := rows[:0:0]
		for _, b := range rows {
			if b.CategoryID != categoryID {
				kept = append(kept, b)
			}
		}
		s.breakdowns[txID] = kept
	}
	return nil
}

// ============================================================
// port.TransactionReader
// ============================================================

// SeedTransaction adds a transaction to a pool. Pool iteration order is
// insertion order.
func (s *Store) SeedTransaction(kind domain.TransactionKind, tx domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[kind][tx.ID]; !ok {
		s.txOrder[kind] = append(s.txOrder[kind], tx.ID)
	}
	s.transactions[kind][tx.ID] = tx
}

func (s *Store) GetTransaction(_ context.Context, kind domain.TransactionKind, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.transactions[kind]
	if !ok {
		return nil, &domain.ErrValidation{Field: "kind", Message: "unknown transaction kind " + string(kind)}
	}
	tx, ok := pool[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: string(kind) + " transaction", ID: id}
	}
	out := tx
	return &out, nil
}

func (s *Store) ListTransactions(_ context.Context, kind domain.TransactionKind, filter port.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.transactions[kind]
	if !ok {
		return nil, &domain.ErrValidation{Field: "kind", Message: "unknown transaction kind " + string(kind)}
	}

	out := make([]domain.Transaction, 0, len(pool))
	for _, id := range s.txOrder[kind] {
		tx := pool[id]
		if !filter.From.IsZero() && tx.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && tx.Date.After(filter.To) {
			continue
		}
		if !filter.AmountBand.IsZero() {
			if tx.Amount.Sub(filter.ApproxAmount).Abs().GreaterThan(filter.AmountBand) {
				continue
			}
		}
		out = append(out, tx)
	}
	return out, nil
}

// ============================================================
// port.LineItemStore
// ============================================================

// SeedLineItem adds a bank line item, preserving insertion order.
func (s *Store) SeedLineItem(item domain.BankLineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lineItems[item.ID]; !ok {
		s.itemOrder = append(s.itemOrder, item.ID)
	}
	s.lineItems[item.ID] = item
}

func (s *Store) GetLineItem(_ context.Context, id string) (*domain.BankLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.lineItems[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "line item", ID: id}
	}
	out := item
	return &out, nil
}

func (s *Store) ListLineItems(_ context.Context, status domain.LineItemStatus) ([]domain.BankLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BankLineItem, 0, len(s.lineItems))
	for _, id := range s.itemOrder {
		item := s.lineItems[id]
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) ListUnmatched(ctx context.Context) ([]domain.BankLineItem, error) {
	return s.ListLineItems(ctx, domain.StatusUnmatched)
}

func (s *Store) UpdateLineItem(_ context.Context, id string, status domain.LineItemStatus, ref *domain.MatchedRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lineItems[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "line item", ID: id}
	}

	item.Status = status
	if ref != nil {
		r := *ref
		item.MatchedRef = &r
	} else {
		item.MatchedRef = nil
	}
	s.lineItems[id] = item
	return nil
}
