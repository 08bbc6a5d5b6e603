package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/domain"
	"github.com/finbooks/finbooks-go/internal/infra/observability"
	"github.com/finbooks/finbooks-go/internal/service"
)

// ============================================================
// Allocation ledger — /v1/transactions/{transactionId}/breakdowns
// ============================================================

// setBreakdownsHandler replaces the full breakdown set for a
// transaction. The transaction amount rides in the body because the
// transaction itself is owned by the surrounding application.
func setBreakdownsHandler(alloc *service.AllocationService, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/transactions/{transactionId}/breakdowns")
		defer span.End()

		transactionID := chi.URLParam(r, "transactionId")
		span.SetAttributes(attribute.String("transaction.id", transactionID))

		var req struct {
			TransactionAmount decimal.Decimal `json:"transaction_amount"`
			Splits            []domain.Split  `json:"splits"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		start := time.Now()
		summary, err := alloc.SetBreakdowns(ctx, transactionID, req.TransactionAmount, req.Splits)
		metrics.RecordRequestDuration("set_breakdowns", time.Since(start))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func getBreakdownsHandler(alloc *service.AllocationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/{transactionId}/breakdowns")
		defer span.End()

		transactionID := chi.URLParam(r, "transactionId")
		amount := parseAmountParam(r)

		views, err := alloc.GetBreakdowns(ctx, transactionID, amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		summary, err := alloc.Summary(ctx, transactionID, amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"breakdowns": views,
			"summary":    summary,
		})
	}
}

func removeBreakdownHandler(alloc *service.AllocationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/transactions/{transactionId}/breakdowns/{breakdownId}")
		defer span.End()

		transactionID := chi.URLParam(r, "transactionId")
		breakdownID := chi.URLParam(r, "breakdownId")

		summary, err := alloc.RemoveBreakdown(ctx, transactionID, breakdownID, parseAmountParam(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// parseAmountParam reads the optional ?transaction_amount= query param
// used to derive percentages and remaining amounts on reads.
func parseAmountParam(r *http.Request) decimal.Decimal {
	if v := r.URL.Query().Get("transaction_amount"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.Zero
}
