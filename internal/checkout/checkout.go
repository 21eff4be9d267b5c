package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Checkout converts the owner's cart into a paid order.
//
// When the payment is declined or the gateway gives up, both the Result (with
// the CANCELLED order and FAILED payment) and an error are returned. The error
// wraps domain.ErrPaymentDeclined or the gateway error.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (_ *Result, err error) {
	ctx, span := o.tracer.Start(ctx, "checkout.Checkout",
		trace.WithAttributes(
			attribute.String("cart.owner", req.Owner.Key()),
			attribute.String("checkout.idempotency_key", req.IdempotencyKey)))
	defer func() { observability.EndSpan(span, err) }()

	owner, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	if existing, err := o.lookupExisting(ctx, req.IdempotencyKey); existing != nil || err != nil {
		return existing, err
	}

	cart, err := o.carts.Snapshot(ctx, req.Owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	ticket, err := o.reserver.ReserveForCart(ctx, cart)
	if err != nil {
		return nil, err
	}

	order, err := o.placeOrder(ctx, owner, cart, req.IdempotencyKey)
	if err != nil {
		o.reserver.ReleaseTicket(context.WithoutCancel(ctx), ticket)
		if errors.Is(err, domain.ErrDuplicateCheckout) {
			// a concurrent request with the same key won the insert
			if existing, errLookup := o.lookupExisting(ctx, req.IdempotencyKey); existing != nil {
				return existing, nil
			} else if errLookup != nil {
				return nil, errLookup
			}
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID.String()))

	return o.pay(ctx, req, order)
}

func (o *Orchestrator) validate(req Request) (domain.OrderOwner, error) {
	if err := req.Owner.Validate(); err != nil {
		return domain.OrderOwner{}, err
	}
	if req.Method == "" {
		return domain.OrderOwner{}, domain.NewValidationError("payment_method", "is required")
	}

	if !req.Owner.IsGuest() {
		return domain.OrderOwner{UserID: req.Owner.UserID}, nil
	}
	if req.GuestEmail == "" {
		return domain.OrderOwner{}, domain.NewValidationError("guest_email", "is required for guest checkout")
	}
	owner := domain.OrderOwner{GuestEmail: req.GuestEmail}
	return owner, owner.Validate()
}

func (o *Orchestrator) lookupExisting(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, nil
	}

	order, err := o.orders.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}

	observability.WithTrace(ctx, o.logger).Info("duplicate checkout request",
		zap.String("idempotency_key", key),
		zap.String("order_id", order.ID.String()),
		zap.String("status", order.Status.String()))

	payment, err := o.payments.GetActiveByOrderID(ctx, order.ID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}
	return &Result{Order: order, Payment: payment, Duplicate: true}, nil
}
