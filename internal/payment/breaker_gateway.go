package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observability"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	Name             string
	ConsecutiveFails uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// BreakerGateway stops calling a failing provider. Declines are answers, not
// failures, and never trip the breaker.
type BreakerGateway struct {
	next      Gateway
	authorize *gobreaker.CircuitBreaker[AuthorizeResult]
	refund    *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerGateway(next Gateway, cfg BreakerSettings, logger *zap.Logger) *BreakerGateway {
	logger = observability.OrNop(logger)
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.HalfOpenRequests,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFails
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("payment gateway circuit changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}
	}

	return &BreakerGateway{
		next:      next,
		authorize: gobreaker.NewCircuitBreaker[AuthorizeResult](settings(cfg.Name + "-authorize")),
		refund:    gobreaker.NewCircuitBreaker[struct{}](settings(cfg.Name + "-refund")),
	}
}

func (b *BreakerGateway) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	res, err := b.authorize.Execute(func() (AuthorizeResult, error) {
		res, err := b.next.Authorize(ctx, req)
		if err == nil && res.Outcome == OutcomeError {
			return res, fmt.Errorf("%w: %s", domain.ErrGatewayError, res.Reason)
		}
		return res, err
	})
	return res, mapBreakerError(err)
}

func (b *BreakerGateway) Refund(ctx context.Context, transactionID string, amount int64, currency string) error {
	_, err := b.refund.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Refund(ctx, transactionID, amount, currency)
	})
	return mapBreakerError(err)
}

func mapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domain.ErrGatewayError, err)
	}
	return err
}
