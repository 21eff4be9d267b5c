package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
	keys   map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[uuid.UUID]*domain.Order),
		keys:   make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.IdempotencyKey != "" {
		if _, exists := r.keys[order.IdempotencyKey]; exists {
			return domain.ErrDuplicateCheckout
		}
		r.keys[order.IdempotencyKey] = order.ID
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	r.mu.RLock()
	id, ok := r.keys[key]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return r.Get(ctx, id)
}

func (r *MemoryRepository) ListByOwner(_ context.Context, owner domain.OrderOwner) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []*domain.Order
	for _, o := range r.orders {
		if o.Owner == owner {
			orders = append(orders, cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, order *domain.Order, from domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Status != from {
		return &domain.TransitionError{From: stored.Status, To: order.Status}
	}
	stored.Status = order.Status
	stored.UpdatedAt = order.UpdatedAt
	stored.ShippedAt = order.ShippedAt
	stored.DeliveredAt = order.DeliveredAt
	stored.CancelledAt = order.CancelledAt
	stored.RefundedAt = order.RefundedAt
	return nil
}

func (r *MemoryRepository) ClaimStockRelease(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[id]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if stored.StockReleased {
		return false, nil
	}
	stored.StockReleased = true
	return true, nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.OrderLine(nil), o.Lines...)
	c.ShippedAt = cloneTime(o.ShippedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.RefundedAt = cloneTime(o.RefundedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
