package cart

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrLineNotFound = errors.New("product not in cart")
)

// Repository stores carts by owner. AddLine merges into an existing line for
// the same product.
type Repository interface {
	GetCart(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error)
	AddLine(ctx context.Context, owner domain.CartOwner, line domain.CartLine) error
	UpdateLineQuantity(ctx context.Context, owner domain.CartOwner, productID int64, quantity int) error
	RemoveLine(ctx context.Context, owner domain.CartOwner, productID int64) error
	DeleteCart(ctx context.Context, owner domain.CartOwner) error
}
