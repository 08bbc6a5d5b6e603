package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/finbooks/finbooks-go/internal/domain"
)

// ============================================================
// Transaction breakdowns — implements port.BreakdownStore
// ============================================================

// breakdownRow maps the transaction_breakdowns table columns.
type breakdownRow struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	CategoryID    string          `json:"category_id"`
	Amount        decimal.Decimal `json:"amount"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

func (r breakdownRow) toDomain() domain.Breakdown {
	return domain.Breakdown{
		ID:            r.ID,
		TransactionID: r.TransactionID,
		CategoryID:    r.CategoryID,
		Amount:        r.Amount,
		Notes:         r.Notes,
		CreatedAt:     parseTimestamp(r.CreatedAt),
	}
}

// ReplaceAll swaps the full breakdown set for one transaction using
// delete-then-insert. The two PostgREST calls run inside a stored
// procedure (replace_breakdowns) so readers never observe the deleted
// gap; the RPC is the storage-level atomic unit the ledger requires.
func (c *Client) ReplaceAll(ctx context.Context, transactionID string, rows []domain.Breakdown) error {
	ctx, span := tracer.Start(ctx, "Supabase.ReplaceAllBreakdowns")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", transactionID),
		attribute.Int("breakdown.count", len(rows)),
	)

	payload := make([]breakdownRow, 0, len(rows))
	for _, b := range rows {
		payload = append(payload, breakdownRow{
			ID:            b.ID,
			TransactionID: b.TransactionID,
			CategoryID:    b.CategoryID,
			Amount:        b.Amount,
			Notes:         b.Notes,
			CreatedAt:     b.CreatedAt.Format(time.RFC3339),
		})
	}

	return c.execute(ctx, "supabase/breakdowns", func() error {
		body := map[string]any{
			"p_transaction_id": transactionID,
			"p_rows":           payload,
		}
		_, err := c.do(ctx, "POST", "rpc/replace_breakdowns", body, "")
		return err
	})
}

func (c *Client) ListByTransaction(ctx context.Context, transactionID string) ([]domain.Breakdown, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListBreakdowns")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", transactionID))

	var out []domain.Breakdown
	err := c.execute(ctx, "supabase/breakdowns", func() error {
		path := fmt.Sprintf("transaction_breakdowns?transaction_id=eq.%s&order=created_at.asc",
			url.QueryEscape(transactionID))
		body, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			out = []domain.Breakdown{}
			return nil
		}

		var rows []breakdownRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode breakdowns: %w", err)
		}
		out = make([]domain.Breakdown, 0, len(rows))
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

func (c *Client) DeleteBreakdown(ctx context.Context, transactionID, breakdownID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteBreakdown")
	defer span.End()
	span.SetAttributes(attribute.String("breakdown.id", breakdownID))

	return c.execute(ctx, "supabase/breakdowns", func() error {
		path := fmt.Sprintf("transaction_breakdowns?id=eq.%s&transaction_id=eq.%s",
			url.QueryEscape(breakdownID), url.QueryEscape(transactionID))
		body, err := c.delete(ctx, path)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			return &domain.ErrNotFound{Resource: "breakdown", ID: breakdownID}
		}
		return nil
	})
}

func (c *Client) CountByCategory(ctx context.Context, categoryID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountBreakdownsByCategory")
	defer span.End()

	var count int
	err := c.execute(ctx, "supabase/breakdowns", func() error {
		path := fmt.Sprintf("transaction_breakdowns?category_id=eq.%s&select=id",
			url.QueryEscape(categoryID))
		body, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			count = 0
			return nil
		}

		var rows []struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode breakdown ids: %w", err)
		}
		count = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Client) DeleteByCategory(ctx context.Context, categoryID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteBreakdownsByCategory")
	defer span.End()
	span.SetAttributes(attribute.String("category.id", categoryID))

	return c.execute(ctx, "supabase/breakdowns", func() error {
		path := fmt.Sprintf("transaction_breakdowns?category_id=eq.%s", url.QueryEscape(categoryID))
		// Deleting zero rows is fine here: cascade is a no-op when the
		// category was never referenced
		_, err := c.delete(ctx, path)
		return err
	})
}
