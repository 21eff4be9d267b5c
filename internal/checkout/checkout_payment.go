package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observability"
	"go.uber.org/zap"
)

func (o *Orchestrator) pay(ctx context.Context, req Request, order *domain.Order) (*Result, error) {
	payment, payErr := o.payments.ProcessPayment(ctx, order, req.Method)

	// from here on the order must reach CONFIRMED or CANCELLED even if the
	// caller goes away
	ctx = context.WithoutCancel(ctx)

	if payment == nil {
		return o.abort(ctx, order, nil, fmt.Errorf("process payment: %w", payErr))
	}

	if payment.Status != domain.PaymentStatusSuccess {
		failure := payErr
		if failure == nil {
			failure = fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, payment.FailureReason)
		}
		return o.abort(ctx, order, payment, failure)
	}

	confirmed, err := o.orders.Transition(ctx, order.ID, domain.OrderStatusConfirmed)
	if err != nil {
		return o.refundAndCancel(ctx, order, payment, err)
	}

	o.clearCart(ctx, req.Owner)
	return &Result{Order: confirmed, Payment: payment}, nil
}

// abort cancels the order, which releases its stock, and returns the
// original failure.
func (o *Orchestrator) abort(ctx context.Context, order *domain.Order, payment *domain.Payment, failure error) (*Result, error) {
	cancelled, err := o.orders.Transition(ctx, order.ID, domain.OrderStatusCancelled)
	if err != nil {
		observability.WithTrace(ctx, o.logger).Error("failed to cancel order after payment failure",
			zap.String("order_id", order.ID.String()),
			zap.NamedError("payment_error", failure),
			zap.Error(err))
		return nil, errors.Join(failure, err)
	}
	return &Result{Order: cancelled, Payment: payment}, failure
}

// refundAndCancel undoes a successful payment whose order could not be
// confirmed, for example because it was cancelled concurrently.
func (o *Orchestrator) refundAndCancel(ctx context.Context, order *domain.Order, payment *domain.Payment, confirmErr error) (*Result, error) {
	logger := observability.WithTrace(ctx, o.logger).With(
		zap.String("order_id", order.ID.String()),
		zap.String("payment_id", payment.ID.String()))
	logger.Warn("order not confirmed after successful payment, refunding", zap.Error(confirmErr))

	refunded, err := o.payments.ProcessRefund(ctx, payment.ID)
	if err != nil {
		logger.Error("refund after failed confirmation failed", zap.Error(err))
		return nil, errors.Join(confirmErr, err)
	}

	cancelled, err := o.orders.Transition(ctx, order.ID, domain.OrderStatusCancelled)
	if errors.Is(err, domain.ErrInvalidStateTransition) {
		// already cancelled by whoever beat the confirmation
		cancelled, err = o.orders.Get(ctx, order.ID)
	}
	if err != nil {
		logger.Error("cancel after refund failed", zap.Error(err))
		return nil, errors.Join(confirmErr, err)
	}
	return &Result{Order: cancelled, Payment: refunded}, fmt.Errorf("confirm order: %w", confirmErr)
}

func (o *Orchestrator) clearCart(ctx context.Context, owner domain.CartOwner) {
	if err := o.carts.ClearCart(ctx, owner); err != nil {
		observability.WithTrace(ctx, o.logger).Warn("failed to clear cart after checkout",
			zap.String("owner", owner.Key()),
			zap.Error(err))
	}
}
