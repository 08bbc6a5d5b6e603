package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/infra/observability"
	"github.com/finbooks/finbooks-go/internal/service"
)

// ============================================================
// Reconciliation — /v1/reconciliation
// ============================================================

func autoMatchHandler(recon *service.ReconcileService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reconciliation/auto-match")
		defer span.End()

		start := time.Now()
		matched, err := recon.AutoMatch(ctx)
		metrics.RecordRequestDuration("auto_match", time.Since(start))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"matched": matched})
	}
}

func listLineItemsHandler(recon *service.ReconcileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reconciliation/line-items")
		defer span.End()

		status := domain.LineItemStatus(r.URL.Query().Get("status"))
		items, err := recon.ListLineItems(ctx, status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"line_items": items})
	}
}

func manualMatchHandler(recon *service.ReconcileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reconciliation/line-items/{lineItemId}/match")
		defer span.End()

		lineItemID := chi.URLParam(r, "lineItemId")
		span.SetAttributes(attribute.String("line_item.id", lineItemID))

		var req struct {
			TransactionID string                 `json:"transaction_id"`
			Kind          domain.TransactionKind `json:"transaction_kind"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TransactionID == "" {
			writeError(w, http.StatusBadRequest, "transaction_id is required")
			return
		}
		if req.Kind != domain.KindExpense && req.Kind != domain.KindIncome {
			writeError(w, http.StatusBadRequest, "transaction_kind must be expense or income")
			return
		}

		if err := recon.ManualMatch(ctx, lineItemID, req.TransactionID, req.Kind); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusMatched)})
	}
}

func unmatchHandler(recon *service.ReconcileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reconciliation/line-items/{lineItemId}/unmatch")
		defer span.End()

		lineItemID := chi.URLParam(r, "lineItemId")
		if err := recon.Unmatch(ctx, lineItemID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusUnmatched)})
	}
}

func ignoreHandler(recon *service.ReconcileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/reconciliation/line-items/{lineItemId}/ignore")
		defer span.End()

		lineItemID := chi.URLParam(r, "lineItemId")
		if err := recon.Ignore(ctx, lineItemID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusIgnored)})
	}
}

func candidatesHandler(recon *service.ReconcileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reconciliation/line-items/{lineItemId}/candidates")
		defer span.End()

		lineItemID := chi.URLParam(r, "lineItemId")
		seq, err := recon.CandidatesFor(ctx, lineItemID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		candidates := make([]domain.Transaction, 0)
		for tx := range seq {
			candidates = append(candidates, tx)
		}
		writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
	}
}

func reconSummaryHandler(recon *service.ReconcileService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reconciliation/summary")
		defer span.End()

		summary, err := recon.Summary(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
