package checkout

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
	"github.com/google/uuid"
)

type fakeCatalog struct {
	products map[int64]*catalog.Product
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeCatalog) ListProducts(context.Context) ([]*catalog.Product, error) {
	out := make([]*catalog.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

// failingCreateRepository refuses to store orders.
type failingCreateRepository struct {
	*order.MemoryRepository
}

func (f *failingCreateRepository) Create(context.Context, *domain.Order) error {
	return errors.New("disk full")
}

// failConfirmRepository cannot persist CONFIRMED.
type failConfirmRepository struct {
	*order.MemoryRepository
}

func (f *failConfirmRepository) UpdateStatus(ctx context.Context, o *domain.Order, from domain.OrderStatus) error {
	if o.Status == domain.OrderStatusConfirmed {
		return errors.New("connection reset")
	}
	return f.MemoryRepository.UpdateStatus(ctx, o, from)
}

// shipOnReadRepository ships an order right after it is first read while
// armed, as a concurrent ShipOrder would.
type shipOnReadRepository struct {
	*order.MemoryRepository
	armed atomic.Bool
}

func (r *shipOnReadRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := r.MemoryRepository.Get(ctx, id)
	if err != nil || !r.armed.CompareAndSwap(true, false) {
		return o, err
	}

	shipped, err := r.MemoryRepository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := shipped.Status
	if err := shipped.Transition(domain.OrderStatusShipped, time.Now()); err != nil {
		return nil, err
	}
	if err := r.MemoryRepository.UpdateStatus(ctx, shipped, from); err != nil {
		return nil, err
	}
	return o, nil
}

// refundFailingGateway approves everything and refuses refunds while failing
// is set.
type refundFailingGateway struct {
	payment.Gateway
	failing atomic.Bool
}

func (g *refundFailingGateway) Refund(ctx context.Context, transactionID string, amount int64, currency string) error {
	if g.failing.Load() {
		return errors.New("refund endpoint unavailable")
	}
	return g.Gateway.Refund(ctx, transactionID, amount, currency)
}
