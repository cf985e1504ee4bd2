// Package errorhandler turns service errors into API responses.
package errorhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medibridge/medibridge-api/internal/domain/ledger"
	"github.com/medibridge/medibridge-api/internal/middleware"
	"github.com/medibridge/medibridge-api/internal/pkg/logger"
	"github.com/medibridge/medibridge-api/internal/pkg/response"
)

// HandleError logs err and sends a formatted error response.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	l := logger.FromContext(ctx)
	event := l.Warn()
	if status >= http.StatusInternalServerError {
		event = l.Error()
	}
	event = event.
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("error_code", code).
		Int("status_code", status)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(message)

	response.Error(w, status, code, message)
}

// Handle maps the ledger error kinds onto HTTP statuses. Anything it does
// not recognise is an internal error.
func Handle(ctx context.Context, w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		logger.FromContext(ctx).Info().
			Str("request_id", middleware.GetRequestID(ctx)).
			Str("account", insufficient.Account.String()).
			Str("available", insufficient.Available.String()).
			Str("requested", insufficient.Requested.String()).
			Msg("insufficient balance")
		response.ErrorWithDetails(w, http.StatusConflict, "INSUFFICIENT_BALANCE", "Insufficient balance", map[string]string{
			"available": insufficient.Available.String(),
			"requested": insufficient.Requested.String(),
		})
	case errors.Is(err, ledger.ErrInsufficientBalance):
		HandleError(ctx, w, http.StatusConflict, "INSUFFICIENT_BALANCE", "Insufficient balance", err)
	case errors.Is(err, ledger.ErrValidation):
		HandleError(ctx, w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
	case errors.Is(err, ledger.ErrNotFound):
		HandleError(ctx, w, http.StatusNotFound, "NOT_FOUND", "Resource not found", err)
	case errors.Is(err, ledger.ErrDuplicateReference):
		HandleError(ctx, w, http.StatusConflict, "DUPLICATE", "Operation already recorded", err)
	case errors.Is(err, context.DeadlineExceeded):
		HandleError(ctx, w, http.StatusServiceUnavailable, "UNAVAILABLE", "Ledger temporarily unavailable", err)
	default:
		HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
	}
}

// LogValidationError logs validation errors with details
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	errJSON, _ := json.Marshal(fieldErrors)
	logger.FromContext(ctx).Warn().
		Str("request_id", middleware.GetRequestID(ctx)).
		RawJSON("validation_errors", errJSON).
		Msg("Validation error")
}
