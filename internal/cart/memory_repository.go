package cart

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/domain"
)

type MemoryRepository struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*domain.Cart)}
}

func (r *MemoryRepository) GetCart(_ context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[owner.Key()]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (r *MemoryRepository) AddLine(_ context.Context, owner domain.CartOwner, line domain.CartLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[owner.Key()]
	if !ok {
		c = domain.NewCart(owner, line.AddedAt)
	}
	if err := c.AddLine(line); err != nil {
		return err
	}
	r.carts[owner.Key()] = c
	return nil
}

func (r *MemoryRepository) UpdateLineQuantity(_ context.Context, owner domain.CartOwner, productID int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[owner.Key()]
	if !ok {
		return ErrLineNotFound
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			return nil
		}
	}
	return ErrLineNotFound
}

func (r *MemoryRepository) RemoveLine(_ context.Context, owner domain.CartOwner, productID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[owner.Key()]
	if !ok {
		return ErrCartNotFound
	}
	for i, l := range c.Lines {
		if l.ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteCart(_ context.Context, owner domain.CartOwner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[owner.Key()]; !ok {
		return ErrCartNotFound
	}
	delete(r.carts, owner.Key())
	return nil
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &cp
}
