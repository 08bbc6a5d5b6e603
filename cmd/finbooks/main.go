package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/config"
	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/handler"
	"github.com/finbooks/finbooks-go/internal/infra/cache"
	"github.com/finbooks/finbooks-go/internal/infra/memstore"
	"github.com/finbooks/finbooks-go/internal/infra/observability"
	"github.com/finbooks/finbooks-go/internal/infra/resilience"
	"github.com/finbooks/finbooks-go/internal/infra/supabase"
	"github.com/finbooks/finbooks-go/internal/port"
	"github.com/finbooks/finbooks-go/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("catalog_cache_ttl", cfg.CatalogCacheTTL),
		zap.String("match_amount_tolerance", cfg.MatchAmountTolerance.String()),
		zap.Int("match_date_tolerance_days", cfg.MatchDateToleranceDays),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "finbooks-core")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	catalogCache := cache.New[[]domain.Category](cfg.CatalogCacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase")

	// --- Stores ---
	// The backend is fixed here, at construction time. Services only
	// ever see the ports.
	var (
		categoryStore  port.CategoryStore
		breakdownStore port.BreakdownStore
		txReader       port.TransactionReader
		lineItemStore  port.LineItemStore
	)

	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as data backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		client := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			cb,
			resilienceCfg,
			logger,
		)
		categoryStore = client
		breakdownStore = client
		txReader = client
		lineItemStore = client
	} else {
		logger.Warn("Supabase not configured, using in-memory store (data is not persisted)")
		mem := memstore.New()
		categoryStore = mem
		breakdownStore = mem
		txReader = mem
		lineItemStore = mem
	}

	// --- Services ---
	catalogSvc := service.NewCatalogService(categoryStore, breakdownStore, catalogCache, metrics, logger)
	allocSvc := service.NewAllocationService(catalogSvc, breakdownStore, metrics, logger)
	reconSvc := service.NewReconcileService(
		txReader,
		lineItemStore,
		service.MatchTolerances{Amount: cfg.MatchAmountTolerance, Days: cfg.MatchDateToleranceDays},
		cfg.MaxConcurrency,
		metrics,
		logger,
	)

	// --- Router ---
	router := handler.NewRouter(catalogSvc, allocSvc, reconSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
