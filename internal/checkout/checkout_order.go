package checkout

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// placeOrder snapshots the cart lines, with the prices captured when they
// were added, into a PENDING order.
func (o *Orchestrator) placeOrder(ctx context.Context, owner domain.OrderOwner, cart *domain.Cart, key string) (*domain.Order, error) {
	lines := make([]domain.OrderLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	order, err := domain.NewOrder(owner, lines, o.currency, o.now())
	if err != nil {
		return nil, err
	}
	order.IdempotencyKey = key

	if err := o.orders.Place(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}
