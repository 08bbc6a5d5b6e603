package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/finbooks/finbooks-go/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleServiceError maps domain errors to HTTP status codes.
// Validation-class failures carry enough context (offending id, excess
// amount) for a user-facing message, so the error string goes straight
// into the response.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var (
		notFound      *domain.ErrNotFound
		duplicateName *domain.ErrDuplicateName
		unknownCat    *domain.ErrUnknownCategory
		duplicateCat  *domain.ErrDuplicateCategory
		negative      *domain.ErrNegativeAmount
		overAllocated *domain.ErrOverAllocated
		inUse         *domain.ErrCategoryInUse
		validation    *domain.ErrValidation
		circuitOpen   *domain.ErrCircuitOpen
		timeout       *domain.ErrTimeout
		external      *domain.ErrExternalService
	)

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &duplicateName):
		logger.Debug("duplicate category name", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &inUse):
		logger.Debug("category in use", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unknownCat), errors.As(err, &duplicateCat), errors.As(err, &negative):
		logger.Debug("invalid split", zap.String("error", err.Error()))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &overAllocated):
		logger.Warn("over-allocated",
			zap.String("transaction_id", overAllocated.TransactionID),
			zap.String("excess", overAllocated.Excess),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "store unavailable")
	default:
		logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
