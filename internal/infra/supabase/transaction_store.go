package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/port"
)

// ============================================================
// Transaction pools — implements port.TransactionReader
// ============================================================

// transactionRow maps the expense_transactions / income_transactions
// table columns. Both tables share the same shape.
type transactionRow struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description,omitempty"`
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          r.ID,
		Amount:      r.Amount,
		Date:        parseTimestamp(r.Date),
		Description: r.Description,
	}
}

func tableForKind(kind domain.TransactionKind) (string, error) {
	switch kind {
	case domain.KindExpense:
		return "expense_transactions", nil
	case domain.KindIncome:
		return "income_transactions", nil
	default:
		return "", &domain.ErrValidation{Field: "kind", Message: fmt.Sprintf("unknown transaction kind %q", kind)}
	}
}

func (c *Client) GetTransaction(ctx context.Context, kind domain.TransactionKind, id string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", id),
		attribute.String("transaction.kind", string(kind)),
	)

	table, err := tableForKind(kind)
	if err != nil {
		return nil, err
	}

	var tx *domain.Transaction
	err = c.execute(ctx, "supabase/transactions", func() error {
		path := fmt.Sprintf("%s?id=eq.%s&limit=1", table, url.QueryEscape(id))
		body, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			return &domain.ErrNotFound{Resource: string(kind) + " transaction", ID: id}
		}

		var rows []transactionRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode transaction: %w", err)
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: string(kind) + " transaction", ID: id}
		}
		out := rows[0].toDomain()
		tx = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions reads a candidate pool, optionally narrowed by date
// range and an approximate amount band. Narrowing only shrinks the pool
// the matcher scans; the matcher applies the real tolerance predicate.
func (c *Client) ListTransactions(ctx context.Context, kind domain.TransactionKind, filter port.TransactionFilter) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.kind", string(kind)))

	table, err := tableForKind(kind)
	if err != nil {
		return nil, err
	}

	conds := []string{"order=date.asc,id.asc"}
	if !filter.From.IsZero() {
		conds = append(conds, "date=gte."+formatDate(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "date=lte."+formatDate(filter.To))
	}
	if !filter.AmountBand.IsZero() {
		low := filter.ApproxAmount.Sub(filter.AmountBand)
		high := filter.ApproxAmount.Add(filter.AmountBand)
		conds = append(conds, "amount=gte."+low.String(), "amount=lte."+high.String())
	}

	var out []domain.Transaction
	err = c.execute(ctx, "supabase/transactions", func() error {
		path := table + "?" + strings.Join(conds, "&")
		body, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			out = []domain.Transaction{}
			return nil
		}

		var rows []transactionRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode transactions: %w", err)
		}
		out = make([]domain.Transaction, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
