package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByOwner(ctx context.Context, owner domain.OrderOwner) ([]*domain.Order, error)
}

type PaymentReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	VerifyPayment(ctx context.Context, id uuid.UUID) (bool, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error)
}

type OrdersHandler struct {
	orders   OrderReader
	payments PaymentReader
	timeout  time.Duration
	logger   *zap.Logger
}

func NewOrdersHandler(orders OrderReader, payments PaymentReader, timeout time.Duration, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:   orders,
		payments: payments,
		timeout:  timeout,
		logger:   observability.OrNop(logger),
	}
}

type VerifyPaymentResponseDTO struct {
	PaymentID string `json:"payment_id"`
	Verified  bool   `json:"verified"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner := getOwner(r.Context())
	if owner.UserID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "order history requires a registered user")
		return
	}

	orders, err := h.orders.ListByOwner(ctx, domain.OrderOwner{UserID: owner.UserID})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	dtos := make([]*OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, toOrderDTO(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}

	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	// another user's order is reported as missing
	if order.Owner.UserID != "" && order.Owner.UserID != getOwner(r.Context()).UserID {
		handleServiceError(w, r, h.logger, domain.ErrOrderNotFound)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// GET /api/v1/orders/{order_id}/payments
func (h *OrdersHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}

	payments, err := h.payments.ListByOrderID(ctx, orderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	dtos := make([]*PaymentResponseDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/payments/{payment_id}
func (h *OrdersHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	paymentID, ok := uuidParam(w, r, "payment_id")
	if !ok {
		return
	}

	payment, err := h.payments.Get(ctx, paymentID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentDTO(payment))
}

// GET /api/v1/payments/{payment_id}/verify
func (h *OrdersHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	paymentID, ok := uuidParam(w, r, "payment_id")
	if !ok {
		return
	}

	verified, err := h.payments.VerifyPayment(ctx, paymentID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, VerifyPaymentResponseDTO{PaymentID: paymentID.String(), Verified: verified})
}
