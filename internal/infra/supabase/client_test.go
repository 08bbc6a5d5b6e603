package supabase_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/infra/resilience"
	"github.com/finbooks/finbooks-go/internal/infra/supabase"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *supabase.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return supabase.NewClient(
		server.Client(),
		server.URL,
		"anon-key",
		"service-key",
		resilience.NewCircuitBreaker("test"),
		resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond},
		zap.NewNop(),
	)
}

func TestGetCategory_NotFoundSkipsRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	})

	_, err := client.GetCategory(context.Background(), "missing")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// A missing row is an answer, not a fault
	if calls.Load() != 1 {
		t.Errorf("expected 1 request, got %d", calls.Load())
	}
}

func TestCreateCategory_ConflictMapsToDuplicateName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505"}`))
	})

	_, err := client.CreateCategory(context.Background(), &domain.Category{
		ID: "c-1", Name: "Travel", CreatedAt: time.Now().UTC(),
	})
	var dup *domain.ErrDuplicateName
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestListCategories_DecodesRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("missing apikey header")
		}
		if r.Header.Get("Authorization") != "Bearer service-key" {
			t.Errorf("missing service role bearer")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"c-1","name":"Advertising","created_at":"2025-03-10T00:00:00Z"},
			{"id":"c-2","name":"Travel","created_at":"2025-03-11"}
		]`))
	})

	cats, err := client.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if cats[0].Name != "Advertising" {
		t.Errorf("expected Advertising first, got %s", cats[0].Name)
	}
	if cats[1].CreatedAt.IsZero() {
		t.Error("expected date-only timestamp to parse")
	}
}

func TestServerErrorRetriesAndWraps(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.ListCategories(context.Background())
	var external *domain.ErrExternalService
	if !errors.As(err, &external) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected initial call plus 2 retries, got %d", calls.Load())
	}
}

func TestDeleteCategory_EmptyRepresentationIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	})

	err := client.DeleteCategory(context.Background(), "ghost")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
