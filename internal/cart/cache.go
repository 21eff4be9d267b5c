package cart

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrStaleVersion = errors.New("cart changed since it was read")
)

// Cache holds carts read from the repository. Every mutation calls Invalidate,
// which bumps the owner's version; Set stores a cart only if the version it
// was read under is still current, so a slow reader cannot put back a cart
// that a writer already replaced.
type Cache interface {
	Get(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error)
	Version(ctx context.Context, owner domain.CartOwner) (int64, error)
	// Set returns ErrStaleVersion when the owner was invalidated after version
	// was read.
	Set(ctx context.Context, owner domain.CartOwner, version int64, cart *domain.Cart) error
	Invalidate(ctx context.Context, owner domain.CartOwner) error
}

// NopCache always misses. Used when no Redis is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, domain.CartOwner) (*domain.Cart, error) { return nil, ErrCacheMiss }

func (NopCache) Version(context.Context, domain.CartOwner) (int64, error) { return 0, nil }

func (NopCache) Set(context.Context, domain.CartOwner, int64, *domain.Cart) error { return nil }

func (NopCache) Invalidate(context.Context, domain.CartOwner) error { return nil }
