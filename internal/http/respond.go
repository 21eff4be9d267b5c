package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type stockDetails struct {
	ProductID int64 `json:"product_id"`
	Available int   `json:"available"`
	Requested int   `json:"requested"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// errorStatus maps a service error onto an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domain.ErrProductUnavailable):
		return http.StatusConflict, "product_unavailable"
	case errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrInvalidPaymentState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrActivePaymentExists),
		errors.Is(err, domain.ErrDuplicateCheckout):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, domain.ErrPaymentDeclined):
		return http.StatusPaymentRequired, "payment_declined"
	case errors.Is(err, domain.ErrGatewayTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, domain.ErrGatewayError):
		return http.StatusBadGateway, "gateway_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func errorBody(err error) (int, ErrorResponse) {
	status, code := errorStatus(err)
	body := ErrorResponse{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		body.Error = "internal server error"
	}

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		body.Details = stockDetails{
			ProductID: stockErr.ProductID,
			Available: stockErr.Available,
			Requested: stockErr.Requested,
		}
	}
	return status, body
}

func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, body := errorBody(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
	}
	respondJSON(w, status, body)
}
