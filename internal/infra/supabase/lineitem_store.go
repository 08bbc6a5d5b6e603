package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/finbooks/finbooks-go/internal/domain"
)

// ============================================================
// Bank line items — implements port.LineItemStore
// ============================================================

// lineItemRow maps the bank_line_items table columns. The matched
// reference is flattened into two nullable columns.
type lineItemRow struct {
	ID           string          `json:"id"`
	Date         string          `json:"date"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Direction    string          `json:"direction"`
	Status       string          `json:"status"`
	MatchedTxnID *string         `json:"matched_transaction_id,omitempty"`
	MatchedKind  *string         `json:"matched_kind,omitempty"`
}

func (r lineItemRow) toDomain() domain.BankLineItem {
	item := domain.BankLineItem{
		ID:          r.ID,
		Date:        parseTimestamp(r.Date),
		Description: r.Description,
		Amount:      r.Amount,
		Direction:   domain.Direction(r.Direction),
		Status:      domain.LineItemStatus(r.Status),
	}
	if r.MatchedTxnID != nil && *r.MatchedTxnID != "" && r.MatchedKind != nil {
		item.MatchedRef = &domain.MatchedRef{
			TransactionID: *r.MatchedTxnID,
			Kind:          domain.TransactionKind(*r.MatchedKind),
		}
	}
	return item
}

func (c *Client) GetLineItem(ctx context.Context, id string) (*domain.BankLineItem, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLineItem")
	defer span.End()
	span.SetAttributes(attribute.String("line_item.id", id))

	var item *domain.BankLineItem
	err := c.execute(ctx, "supabase/line_items", func() error {
		path := fmt.Sprintf("bank_line_items?id=eq.%s&limit=1", url.QueryEscape(id))
		body, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			return &domain.ErrNotFound{Resource: "line item", ID: id}
		}

		var rows []lineItemRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode line item: %w", err)
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "line item", ID: id}
		}
		out := rows[0].toDomain()
		item = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) ListLineItems(ctx context.Context, status domain.LineItemStatus) ([]domain.BankLineItem, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLineItems")
	defer span.End()

	path := "bank_line_items?order=date.asc,id.asc"
	if status != "" {
		path = fmt.Sprintf("bank_line_items?status=eq.%s&order=date.asc,id.asc", url.QueryEscape(string(status)))
	}

	var items []domain.BankLineItem
	err := c.execute(ctx, "supabase/line_items", func() error {
		body, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			items = []domain.BankLineItem{}
			return nil
		}

		var rows []lineItemRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode line items: %w", err)
		}
		items = make([]domain.BankLineItem, 0, len(rows))
		for _, r := range rows {
			items = append(items, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) ListUnmatched(ctx context.Context) ([]domain.BankLineItem, error) {
	return c.ListLineItems(ctx, domain.StatusUnmatched)
}

// UpdateLineItem writes status and matched reference in one PATCH so the
// two can never diverge. A nil ref clears both reference columns.
func (c *Client) UpdateLineItem(ctx context.Context, id string, status domain.LineItemStatus, ref *domain.MatchedRef) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateLineItem")
	defer span.End()
	span.SetAttributes(
		attribute.String("line_item.id", id),
		attribute.String("line_item.status", string(status)),
	)

	updates := map[string]any{
		"status":                 string(status),
		"matched_transaction_id": nil,
		"matched_kind":           nil,
	}
	if ref != nil {
		updates["matched_transaction_id"] = ref.TransactionID
		updates["matched_kind"] = string(ref.Kind)
	}

	return c.execute(ctx, "supabase/line_items", func() error {
		path := fmt.Sprintf("bank_line_items?id=eq.%s", url.QueryEscape(id))
		body, err := c.patch(ctx, path, updates)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			return &domain.ErrNotFound{Resource: "line item", ID: id}
		}
		return nil
	})
}
