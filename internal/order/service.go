package order

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/notify"
	"github.com/fjod/storefront/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockReleaser returns an order's quantities to the ledger.
type StockReleaser interface {
	ReleaseForOrder(ctx context.Context, order *domain.Order) error
}

// Service owns the order state machine. Every move into a stock-releasing
// status goes through Transition so the ledger is restored exactly once.
type Service struct {
	repo     Repository
	stock    StockReleaser
	notifier notify.Dispatcher
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, stock StockReleaser, notifier notify.Dispatcher, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		repo:     repo,
		stock:    stock,
		notifier: notifier,
		logger:   observability.OrNop(logger),
		now:      time.Now,
	}
}

// Place persists a freshly built PENDING order.
func (s *Service) Place(ctx context.Context, order *domain.Order) error {
	if order.Status != domain.OrderStatusPending {
		return &domain.TransitionError{From: order.Status, To: domain.OrderStatusPending}
	}
	if order.TotalAmount != order.LinesTotal() {
		return domain.NewValidationError("total_amount", "does not match the sum of the lines")
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	s.notify(ctx, order, notify.EventOrderPlaced)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return s.repo.GetByIdempotencyKey(ctx, key)
}

func (s *Service) ListByOwner(ctx context.Context, owner domain.OrderOwner) ([]*domain.Order, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListByOwner(ctx, owner)
}

// Transition moves the order to next. Illegal edges fail with a
// *domain.TransitionError and leave the stored order unchanged.
//
// For CANCELLED and REFUNDED the stock release is guarded by a persisted flag,
// so calling Transition again after a partial failure finishes the release
// without releasing twice.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := order.Status

	if from == next && next.ReleasesStock() && !order.StockReleased {
		if err := s.releaseStock(ctx, order); err != nil {
			return nil, err
		}
		return order, nil
	}

	if err := order.Transition(next, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, order, from); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if next.ReleasesStock() {
		if err := s.releaseStock(ctx, order); err != nil {
			return nil, err
		}
	}

	s.logger.Info("order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("from", from.String()),
		zap.String("to", next.String()))
	s.notify(ctx, order, notify.EventOrderStatusChanged)
	return order, nil
}

func (s *Service) releaseStock(ctx context.Context, order *domain.Order) error {
	claimed, err := s.repo.ClaimStockRelease(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("order %s is %s but stock release is pending: %w", order.ID, order.Status, err)
	}
	order.StockReleased = true
	if !claimed {
		return nil
	}
	if err := s.stock.ReleaseForOrder(ctx, order); err != nil {
		observability.WithTrace(ctx, s.logger).Error("release stock for order",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}
	return nil
}

func (s *Service) notify(ctx context.Context, order *domain.Order, event notify.EventType) {
	recipient := order.Owner.UserID
	if recipient == "" {
		recipient = order.Owner.GuestEmail
	}
	s.notifier.Notify(ctx, notify.Notification{
		Type:        event,
		AggregateID: order.ID.String(),
		Status:      order.Status.String(),
		StatusLabel: order.Status.Label(),
		Recipient:   recipient,
		OccurredAt:  order.UpdatedAt,
	})
}
