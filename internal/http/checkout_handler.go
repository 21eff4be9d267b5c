package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID) (*checkout.Result, error)
	ShipOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	DeliverOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	RefundOrder(ctx context.Context, orderID uuid.UUID) (*checkout.Result, error)
	RefundPayment(ctx context.Context, paymentID uuid.UUID) (*checkout.Result, error)
}

const HeaderIdempotencyKey = "Idempotency-Key"

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCheckoutHandler(svc CheckoutService, timeout time.Duration, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: svc,
		timeout:  timeout,
		logger:   observability.OrNop(logger),
	}
}

type CheckoutRequestDTO struct {
	PaymentMethod  string `json:"payment_method"`
	IdempotencyKey string `json:"idempotency_key"`
	GuestEmail     string `json:"guest_email,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)
	}

	res, err := h.checkout.Checkout(ctx, checkout.Request{
		Owner:          owner,
		GuestEmail:     req.GuestEmail,
		Method:         domain.PaymentMethod(req.PaymentMethod),
		IdempotencyKey: req.IdempotencyKey,
	})
	h.respondResult(w, r, res, err, http.StatusCreated)
}

// POST /api/v1/orders/{order_id}/cancel
func (h *CheckoutHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderResult(w, r, h.checkout.CancelOrder)
}

// POST /api/v1/orders/{order_id}/refund
func (h *CheckoutHandler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	h.orderResult(w, r, h.checkout.RefundOrder)
}

// POST /api/v1/orders/{order_id}/ship
func (h *CheckoutHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, h.checkout.ShipOrder)
}

// POST /api/v1/orders/{order_id}/deliver
func (h *CheckoutHandler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, h.checkout.DeliverOrder)
}

// POST /api/v1/payments/{payment_id}/refund
func (h *CheckoutHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	paymentID, ok := uuidParam(w, r, "payment_id")
	if !ok {
		return
	}

	res, err := h.checkout.RefundPayment(ctx, paymentID)
	h.respondResult(w, r, res, err, http.StatusOK)
}

func (h *CheckoutHandler) orderResult(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, uuid.UUID) (*checkout.Result, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}

	res, err := fn(ctx, orderID)
	h.respondResult(w, r, res, err, http.StatusOK)
}

func (h *CheckoutHandler) orderTransition(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, uuid.UUID) (*domain.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "order_id")
	if !ok {
		return
	}

	order, err := fn(ctx, orderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// respondResult writes the order and payment even when err is set, so a
// declined checkout still shows the cancelled order and failed payment.
func (h *CheckoutHandler) respondResult(w http.ResponseWriter, r *http.Request, res *checkout.Result, err error, okStatus int) {
	if res == nil {
		if err == nil {
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		handleServiceError(w, r, h.logger, err)
		return
	}

	body := CheckoutResponseDTO{
		Order:     toOrderDTO(res.Order),
		Payment:   toPaymentDTO(res.Payment),
		Duplicate: res.Duplicate,
	}
	status := okStatus
	if res.Duplicate {
		status = http.StatusOK
	}
	if err != nil {
		var errBody ErrorResponse
		status, errBody = errorBody(err)
		body.Error = &errBody
	}
	respondJSON(w, status, body)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
