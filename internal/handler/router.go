package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/infra/observability"
	"github.com/finbooks/finbooks-go/internal/service"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(catalog *service.CatalogService, alloc *service.AllocationService, recon *service.ReconcileService, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(catalog))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Category catalog
		r.Get("/categories", listCategoriesHandler(catalog, logger))
		r.Post("/categories", createCategoryHandler(catalog, logger))
		r.Put("/categories/{categoryId}", updateCategoryHandler(catalog, logger))
		r.Delete("/categories/{categoryId}", deleteCategoryHandler(catalog, logger))

		// Allocation ledger
		r.Get("/transactions/{transactionId}/breakdowns", getBreakdownsHandler(alloc, logger))
		r.Put("/transactions/{transactionId}/breakdowns", setBreakdownsHandler(alloc, metrics, logger))
		r.Delete("/transactions/{transactionId}/breakdowns/{breakdownId}", removeBreakdownHandler(alloc, logger))

		// Reconciliation
		r.Post("/reconciliation/auto-match", autoMatchHandler(recon, metrics, logger))
		r.Get("/reconciliation/line-items", listLineItemsHandler(recon, logger))
		r.Post("/reconciliation/line-items/{lineItemId}/match", manualMatchHandler(recon, logger))
		r.Post("/reconciliation/line-items/{lineItemId}/unmatch", unmatchHandler(recon, logger))
		r.Post("/reconciliation/line-items/{lineItemId}/ignore", ignoreHandler(recon, logger))
		r.Get("/reconciliation/line-items/{lineItemId}/candidates", candidatesHandler(recon, logger))
		r.Get("/reconciliation/summary", reconSummaryHandler(recon, logger))

		// Counter snapshot for the dashboard's ops widget
		r.Get("/metrics/reconciliation", matcherMetricsHandler(metrics))
	})

	return r
}

// healthzHandler probes the backing store through the catalog list,
// which is the cheapest call that exercises it.
func healthzHandler(catalog *service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		start := time.Now()
		if _, err := catalog.List(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":           status,
			"store_latency_ms": time.Since(start).Milliseconds(),
			"checked_at":       time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func matcherMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
