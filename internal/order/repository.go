package order

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

// Repository persists orders. Implementations: MemoryRepository and
// postgres.OrderRepository.
type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	ListByOwner(ctx context.Context, owner domain.OrderOwner) ([]*domain.Order, error)

	// UpdateStatus writes status and timestamps only if the stored status is
	// still from; otherwise it returns domain.ErrInvalidStateTransition.
	UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error

	// ClaimStockRelease flips stock_released from false to true and reports
	// whether this call did it.
	ClaimStockRelease(ctx context.Context, id uuid.UUID) (bool, error)
}
