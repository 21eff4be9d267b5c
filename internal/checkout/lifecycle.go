package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CancelOrder cancels a PENDING or CONFIRMED order and then refunds its
// settled payment. The order is committed first so a concurrent ship can
// never leave a refunded payment on a live order. If the refund fails the
// order stays CANCELLED with a SUCCESS payment, and calling CancelOrder again
// retries the refund.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID uuid.UUID) (_ *Result, err error) {
	ctx, span := o.tracer.Start(ctx, "checkout.CancelOrder",
		trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer func() { observability.EndSpan(span, err) }()

	cancelled, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if cancelled.Status != domain.OrderStatusCancelled || !cancelled.StockReleased {
		if cancelled, err = o.orders.Transition(ctx, orderID, domain.OrderStatusCancelled); err != nil {
			return nil, err
		}
	}

	// the order is already cancelled; the refund must not be abandoned
	ctx = context.WithoutCancel(ctx)
	payment, err := o.activePayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.Status != domain.PaymentStatusSuccess {
		return &Result{Order: cancelled, Payment: payment}, nil
	}

	refunded, err := o.payments.ProcessRefund(ctx, payment.ID)
	if err != nil {
		observability.WithTrace(ctx, o.logger).Error("order cancelled but payment not refunded",
			zap.String("order_id", orderID.String()),
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err))
		return &Result{Order: cancelled, Payment: payment}, fmt.Errorf("refund after cancel: %w", err)
	}
	return &Result{Order: cancelled, Payment: refunded}, nil
}

func (o *Orchestrator) ShipOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return o.orders.Transition(ctx, orderID, domain.OrderStatusShipped)
}

func (o *Orchestrator) DeliverOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return o.orders.Transition(ctx, orderID, domain.OrderStatusDelivered)
}

// RefundPayment refunds a SUCCESS payment and moves its DELIVERED order to
// REFUNDED, restoring stock. If a previous call refunded the payment but did
// not finish the order, calling again completes the order side.
func (o *Orchestrator) RefundPayment(ctx context.Context, paymentID uuid.UUID) (_ *Result, err error) {
	ctx, span := o.tracer.Start(ctx, "checkout.RefundPayment",
		trace.WithAttributes(attribute.String("payment.id", paymentID.String())))
	defer func() { observability.EndSpan(span, err) }()

	payment, err := o.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	order, err := o.orders.Get(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}

	resume := payment.Status == domain.PaymentStatusRefunded && order.Status == domain.OrderStatusDelivered
	if !resume {
		if payment.Status != domain.PaymentStatusSuccess {
			return nil, &domain.PaymentStateError{From: payment.Status, To: domain.PaymentStatusRefunded}
		}
		// check the order edge before any money moves
		if !order.Status.CanTransitionTo(domain.OrderStatusRefunded) {
			return nil, &domain.TransitionError{From: order.Status, To: domain.OrderStatusRefunded}
		}
		if payment, err = o.payments.ProcessRefund(ctx, paymentID); err != nil {
			return nil, err
		}
	}

	refunded, err := o.orders.Transition(context.WithoutCancel(ctx), order.ID, domain.OrderStatusRefunded)
	if err != nil {
		observability.WithTrace(ctx, o.logger).Error("payment refunded but order not updated",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_id", paymentID.String()),
			zap.Error(err))
		return nil, err
	}
	return &Result{Order: refunded, Payment: payment}, nil
}

// RefundOrder refunds the order's settled payment.
func (o *Orchestrator) RefundOrder(ctx context.Context, orderID uuid.UUID) (*Result, error) {
	payment, err := o.activePayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrPaymentNotFound)
	}
	return o.RefundPayment(ctx, payment.ID)
}

func (o *Orchestrator) activePayment(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	payment, err := o.payments.GetActiveByOrderID(ctx, orderID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, nil
	}
	return payment, err
}
