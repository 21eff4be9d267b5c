package cart

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
)

type mockCache struct {
	m        sync.RWMutex
	carts    map[string]*domain.Cart
	versions map[string]int64
	err      error
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart), versions: make(map[string]int64)}
}

func (m *mockCache) Get(_ context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[owner.Key()]
	if !ok {
		return nil, ErrCacheMiss
	}
	return cloneCart(c), nil
}

func (m *mockCache) Version(_ context.Context, owner domain.CartOwner) (int64, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.versions[owner.Key()], nil
}

func (m *mockCache) Set(_ context.Context, owner domain.CartOwner, version int64, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.versions[owner.Key()] != version {
		return ErrStaleVersion
	}
	m.carts[owner.Key()] = cloneCart(cart)
	return nil
}

func (m *mockCache) Invalidate(_ context.Context, owner domain.CartOwner) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.versions[owner.Key()]++
	delete(m.carts, owner.Key())
	return nil
}

func (m *mockCache) cached(owner domain.CartOwner) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.carts[owner.Key()]
	return ok
}

type mockCatalog struct {
	products map[int64]*catalog.Product
}

func (m *mockCatalog) GetProduct(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (m *mockCatalog) ListProducts(context.Context) ([]*catalog.Product, error) {
	var out []*catalog.Product
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

type mockStock struct {
	entries map[int64]domain.StockEntry
}

func (m *mockStock) Stock(_ context.Context, id int64) (domain.StockEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return domain.StockEntry{}, domain.ErrProductNotFound
	}
	return e, nil
}

// failingRepository wraps a memory repository and fails reads.
type failingRepository struct {
	*MemoryRepository
	err error
}

func (f *failingRepository) GetCart(context.Context, domain.CartOwner) (*domain.Cart, error) {
	return nil, f.err
}

// interleavingRepository runs onRead once, after the next GetCart has read
// its result and before that result is returned.
type interleavingRepository struct {
	*MemoryRepository
	onRead atomic.Pointer[func()]
}

func (r *interleavingRepository) GetCart(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	cart, err := r.MemoryRepository.GetCart(ctx, owner)
	if hook := r.onRead.Swap(nil); hook != nil {
		(*hook)()
	}
	return cart, err
}
