package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/finbooks/finbooks-go/internal/domain"
)

// ============================================================
// Category catalog — implements port.CategoryStore
// ============================================================

// categoryRow maps the categories table columns.
type categoryRow struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func (r categoryRow) toDomain() domain.Category {
	return domain.Category{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		DepartmentID: r.DepartmentID,
		CreatedAt:    parseTimestamp(r.CreatedAt),
	}
}

func (c *Client) CreateCategory(ctx context.Context, cat *domain.Category) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCategory")
	defer span.End()
	span.SetAttributes(attribute.String("category.name", cat.Name))

	row := categoryRow{
		ID:           cat.ID,
		Name:         cat.Name,
		Description:  cat.Description,
		DepartmentID: cat.DepartmentID,
		CreatedAt:    cat.CreatedAt.Format(time.RFC3339),
	}

	var created *domain.Category
	err := c.execute(ctx, "supabase/categories", func() error {
		body, err := c.post(ctx, "categories", row)
		if err != nil {
			// The table has a unique constraint on name
			if isConflict(err) {
				return &domain.ErrDuplicateName{Name: cat.Name}
			}
			return err
		}

		var rows []categoryRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode category: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("insert returned no rows")
		}
		out := rows[0].toDomain()
		created = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCategory")
	defer span.End()

	var cat *domain.Category
	err := c.execute(ctx, "supabase/categories", func() error {
		path := fmt.Sprintf("categories?id=eq.%s&limit=1", url.QueryEscape(id))
		body, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			return &domain.ErrNotFound{Resource: "category", ID: id}
		}

		var rows []categoryRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode category: %w", err)
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "category", ID: id}
		}
		out := rows[0].toDomain()
		cat = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Client) GetCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCategoryByName")
	defer span.End()

	var cat *domain.Category
	err := c.execute(ctx, "supabase/categories", func() error {
		path := fmt.Sprintf("categories?name=eq.%s&limit=1", url.QueryEscape(name))
		body, err := c.get(ctx, path)
		if err != nil {
			return err
		}
		if emptyBody(body) {
			return &domain.ErrNotFound{Resource: "category", ID: name}
		}

		var rows []categoryRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode category: %w", err)
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "category", ID: name}
		}
		out := rows[0].toDomain()
		cat = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id string, updates map[string]any) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCategory")
	defer span.End()
	span.SetAttributes(attribute.String("category.id", id))

	var cat *domain.Category
	err := c.execute(ctx, "supabase/categories", func() error {
		path := fmt.Sprintf("categories?id=eq.%s", url.QueryEscape(id))
		body, err := c.patch(ctx, path, updates)
		if err != nil {
			if isConflict(err) {
				name, _ := updates["name"].(string)
				return &domain.ErrDuplicateName{Name: name}
			}
			return err
		}
		if emptyBody(body) {
			return &domain.ErrNotFound{Resource: "category", ID: id}
		}

		var rows []categoryRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode category: %w", err)
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "category", ID: id}
		}
		out := rows[0].toDomain()
		cat = &out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCategory")
	defer span.End()
	span.SetAttributes(attribute.String("category.id", id))

	err := c.execute(ctx, "supabase/categories", func() error {
		path := fmt.Sprintf("categories?id=eq.%s", url.QueryEscape(id))
		body, err := c.delete(ctx, path)
		if err != nil {
			return err
		}
		// return=representation echoes deleted rows; empty means the id
		// did not exist
		if emptyBody(body) {
			return &domain.ErrNotFound{Resource: "category", ID: id}
		}
		return nil
	})
	return err
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCategories")
	defer span.End()

	var cats []domain.Category
	err := c.execute(ctx, "supabase/categories", func() error {
		body, err := c.get(ctx, "categories?order=name.asc,created_at.asc")
		if err != nil {
			return err
		}
		if emptyBody(body) {
			cats = []domain.Category{}
			return nil
		}

		var rows []categoryRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode categories: %w", err)
		}
		cats = make([]domain.Category, 0, len(rows))
		for _, r := range rows {
			cats = append(cats, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cats, nil
}
