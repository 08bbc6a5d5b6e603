package cache_test

import (
	"testing"
	"time"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[[]domain.Category](5 * time.Minute)

	c.Set("categories", []domain.Category{{ID: "c-1", Name: "Travel"}})
	val, ok := c.Get("categories")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if len(val) != 1 || val[0].Name != "Travel" {
		t.Errorf("expected cached catalog, got %+v", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)

	c.Set("categories", "stale")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("categories")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("categories", "value")
	c.Delete("categories")

	_, ok := c.Get("categories")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_DeleteMissingIsNoop(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	c.Delete("never-set")
}
