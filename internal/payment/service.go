package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Service owns the payment state machine and the gateway interaction.
type Service struct {
	repo     Repository
	gateway  Gateway
	policy   RetryPolicy
	notifier notify.Dispatcher
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(repo Repository, gateway Gateway, policy RetryPolicy, notifier notify.Dispatcher, logger *zap.Logger) *Service {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		repo:     repo,
		gateway:  gateway,
		policy:   policy,
		notifier: notifier,
		logger:   observability.OrNop(logger),
		tracer:   observability.Tracer("payment"),
		now:      time.Now,
	}
}

// ProcessPayment creates a PENDING payment for the order and settles it with
// the gateway. The returned payment is always SUCCESS or FAILED. When the
// failure came from the gateway rather than a decline, the error wraps
// domain.ErrGatewayTimeout or domain.ErrGatewayError as well.
func (s *Service) ProcessPayment(ctx context.Context, order *domain.Order, method domain.PaymentMethod) (_ *domain.Payment, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.ProcessPayment",
		trace.WithAttributes(
			attribute.String("order.id", order.ID.String()),
			attribute.Int64("payment.amount", order.TotalAmount)))
	defer func() { observability.EndSpan(span, err) }()

	if order.Status != domain.OrderStatusPending {
		return nil, &domain.TransitionError{From: order.Status, To: domain.OrderStatusConfirmed}
	}
	if method == "" {
		return nil, domain.NewValidationError("payment_method", "is required")
	}

	payment := domain.NewPayment(order, method, s.now())
	if errCreate := s.repo.Create(ctx, payment); errCreate != nil {
		return nil, fmt.Errorf("create payment: %w", errCreate)
	}

	result, authErr := s.authorize(ctx, payment)

	now := s.now()
	switch {
	case authErr != nil:
		_ = payment.MarkAsFailed(failureReason(authErr), now)
	case result.Outcome == OutcomeApproved:
		_ = payment.MarkAsSuccess(result.TransactionID, now)
	default:
		reason := result.Reason
		if reason == "" {
			reason = string(OutcomeDeclined)
		}
		_ = payment.MarkAsFailed(reason, now)
	}

	// the gateway already answered; the result must be recorded even if the
	// caller has gone away
	if errUpdate := s.repo.Update(context.WithoutCancel(ctx), payment, domain.PaymentStatusPending); errUpdate != nil {
		observability.WithTrace(ctx, s.logger).Error("payment result not persisted",
			zap.String("payment_id", payment.ID.String()),
			zap.String("status", payment.Status.String()),
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(errUpdate))
		return nil, fmt.Errorf("persist payment result: %w", errUpdate)
	}

	span.SetAttributes(attribute.String("payment.status", payment.Status.String()))
	s.notify(ctx, payment)
	return payment, authErr
}

func (s *Service) authorize(ctx context.Context, payment *domain.Payment) (AuthorizeResult, error) {
	req := AuthorizeRequest{
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		Method:         payment.Method,
		IdempotencyKey: payment.ID.String(),
	}
	logger := observability.WithTrace(ctx, s.logger)

	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.policy.backoff(attempt-1)); err != nil {
				break
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.policy.AttemptTimeout)
		res, err := s.gateway.Authorize(attemptCtx, req)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil && res.Outcome != OutcomeError {
			return res, nil
		}

		lastErr = classifyGatewayError(err, res, timedOut)
		logger.Warn("payment authorization attempt failed",
			zap.String("payment_id", payment.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %v", domain.ErrGatewayError, ctx.Err())
	}
	return AuthorizeResult{}, lastErr
}

func classifyGatewayError(err error, res AuthorizeResult, timedOut bool) error {
	switch {
	case errors.Is(err, domain.ErrGatewayTimeout), errors.Is(err, domain.ErrGatewayError):
		return err
	case timedOut || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrGatewayTimeout, err)
	case err != nil:
		return fmt.Errorf("%w: %v", domain.ErrGatewayError, err)
	default:
		return fmt.Errorf("%w: %s", domain.ErrGatewayError, res.Reason)
	}
}

func failureReason(err error) string {
	if errors.Is(err, domain.ErrGatewayTimeout) {
		return "gateway timeout"
	}
	return "gateway error"
}

// VerifyPayment reports whether the payment is settled. It never mutates.
func (s *Service) VerifyPayment(ctx context.Context, id uuid.UUID) (bool, error) {
	payment, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return payment.Status == domain.PaymentStatusSuccess, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	return s.repo.GetActiveByOrderID(ctx, orderID)
}

func (s *Service) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	return s.repo.ListByOrderID(ctx, orderID)
}

// ProcessRefund refunds a SUCCESS payment. The order side (REFUNDED plus
// stock release) is driven by the caller.
func (s *Service) ProcessRefund(ctx context.Context, id uuid.UUID) (_ *domain.Payment, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.ProcessRefund",
		trace.WithAttributes(attribute.String("payment.id", id.String())))
	defer func() { observability.EndSpan(span, err) }()

	payment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusSuccess {
		return nil, &domain.PaymentStateError{From: payment.Status, To: domain.PaymentStatusRefunded}
	}

	claimed, err := s.repo.ClaimRefund(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("claim refund: %w", err)
	}
	if !claimed {
		return nil, s.refundClaimLost(ctx, id)
	}

	logger := observability.WithTrace(ctx, s.logger).With(zap.String("payment_id", id.String()))
	refundCtx, cancel := context.WithTimeout(ctx, s.policy.AttemptTimeout)
	errRefund := s.gateway.Refund(refundCtx, payment.TransactionID, payment.Amount, payment.Currency)
	timedOut := errors.Is(refundCtx.Err(), context.DeadlineExceeded)
	cancel()
	if errRefund != nil {
		if errRelease := s.repo.ReleaseRefundClaim(context.WithoutCancel(ctx), id); errRelease != nil {
			logger.Error("refund claim not released", zap.Error(errRelease))
		}
		return nil, classifyGatewayError(errRefund, AuthorizeResult{}, timedOut)
	}

	if err := payment.MarkAsRefunded(s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(context.WithoutCancel(ctx), payment, domain.PaymentStatusSuccess); err != nil {
		logger.Error("refund not persisted",
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err))
		return nil, fmt.Errorf("persist refund: %w", err)
	}

	s.notify(ctx, payment)
	return payment, nil
}

// refundClaimLost reports why another caller holds the refund.
func (s *Service) refundClaimLost(ctx context.Context, id uuid.UUID) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != domain.PaymentStatusSuccess {
		return &domain.PaymentStateError{From: current.Status, To: domain.PaymentStatusRefunded}
	}
	return domain.ErrRefundInProgress
}

func (s *Service) notify(ctx context.Context, payment *domain.Payment) {
	s.notifier.Notify(ctx, notify.Notification{
		Type:        notify.EventPaymentProcessed,
		AggregateID: payment.OrderID.String(),
		Status:      payment.Status.String(),
		StatusLabel: payment.Status.Label(),
		OccurredAt:  s.now(),
	})
}
