// Package service provides the business logic layer (use cases):
// the category catalog, the allocation ledger and the bank
// reconciliation matcher.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/infra/observability"
	"github.com/finbooks/finbooks-go/internal/port"
)

var catalogTracer = otel.Tracer("service/catalog")

const catalogCacheKey = "categories"

// CatalogService manages the category catalog. The full list is cached
// per process and invalidated on every mutation.
type CatalogService struct {
	store      port.CategoryStore
	breakdowns port.BreakdownStore
	cache      port.Cache[[]domain.Category]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewCatalogService creates a catalog service.
func NewCatalogService(store port.CategoryStore, breakdowns port.BreakdownStore, cache port.Cache[[]domain.Category], metrics *observability.Metrics, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		store:      store,
		breakdowns: breakdowns,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
	}
}

// Create adds a category. Names are matched case-sensitively; an exact
// duplicate fails with ErrDuplicateName.
func (s *CatalogService) Create(ctx context.Context, name, description, departmentID string) (*domain.Category, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("category.name", name))

	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}

	_, err := s.store.GetCategoryByName(ctx, name)
	if err == nil {
		return nil, &domain.ErrDuplicateName{Name: name}
	}
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		return nil, err
	}

	cat := &domain.Category{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  description,
		DepartmentID: departmentID,
		CreatedAt:    time.Now().UTC(),
	}

	created, err := s.store.CreateCategory(ctx, cat)
	if err != nil {
		return nil, err
	}

	s.cache.Delete(catalogCacheKey)
	s.logger.Info("category created",
		zap.String("category_id", created.ID),
		zap.String("name", created.Name),
	)
	return created, nil
}

// Update applies the non-nil fields of req to an existing category.
func (s *CatalogService) Update(ctx context.Context, id string, req *domain.CategoryRequest) (*domain.Category, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("category.id", id))

	updates := make(map[string]any)
	if req.Name != nil {
		if *req.Name == "" {
			return nil, &domain.ErrValidation{Field: "name", Message: "name cannot be empty"}
		}
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.DepartmentID != nil {
		updates["department_id"] = *req.DepartmentID
	}
	if len(updates) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}

	updated, err := s.store.UpdateCategory(ctx, id, updates)
	if err != nil {
		return nil, err
	}

	s.cache.Delete(catalogCacheKey)
	return updated, nil
}

// Delete removes a category. While breakdowns still reference it the
// call fails with ErrCategoryInUse unless cascade is set, in which case
// the dependent breakdowns are removed first and the cascade is logged.
func (s *CatalogService) Delete(ctx context.Context, id string, cascade bool) error {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("category.id", id),
		attribute.Bool("cascade", cascade),
	)

	// The store itself performs no referential check, so the guard
	// lives here
	refs, err := s.breakdowns.CountByCategory(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 && !cascade {
		return &domain.ErrCategoryInUse{CategoryID: id, RefCount: refs}
	}
	if refs > 0 {
		if err := s.breakdowns.DeleteByCategory(ctx, id); err != nil {
			return err
		}
		s.logger.Warn("cascade-deleted breakdowns for category",
			zap.String("category_id", id),
			zap.Int("breakdowns_deleted", refs),
		)
	}

	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}

	s.cache.Delete(catalogCacheKey)
	s.logger.Info("category deleted", zap.String("category_id", id))
	return nil
}

// Get returns a single category by id.
func (s *CatalogService) Get(ctx context.Context, id string) (*domain.Category, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.Get")
	defer span.End()

	return s.store.GetCategory(ctx, id)
}

// List returns all categories ordered by name, creation order breaking
// ties. The result is served from cache until the next mutation or TTL
// expiry.
func (s *CatalogService) List(ctx context.Context) ([]domain.Category, error) {
	ctx, span := catalogTracer.Start(ctx, "CatalogService.List")
	defer span.End()

	if cached, ok := s.cache.Get(catalogCacheKey); ok {
		s.metrics.IncrCacheHit("catalog")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("catalog")

	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		s.metrics.IncrStoreError("categories")
		return nil, err
	}

	s.cache.Set(catalogCacheKey, cats)
	return cats, nil
}
