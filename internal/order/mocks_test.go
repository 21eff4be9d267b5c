package order

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/notify"
	"github.com/google/uuid"
)

type MockReleaser struct {
	mu        sync.Mutex
	Released  []uuid.UUID
	CallCount int
}

func (m *MockReleaser) ReleaseForOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	m.Released = append(m.Released, order.ID)
	return nil
}

type MockDispatcher struct {
	mu   sync.Mutex
	Sent []notify.Notification
}

func (m *MockDispatcher) Notify(_ context.Context, n notify.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
}

// FlakyRepository fails the next call of the configured kind once.
type FlakyRepository struct {
	*MemoryRepository
	ClaimErr  error
	UpdateErr error
}

func (f *FlakyRepository) ClaimStockRelease(ctx context.Context, id uuid.UUID) (bool, error) {
	if f.ClaimErr != nil {
		err := f.ClaimErr
		f.ClaimErr = nil
		return false, err
	}
	return f.MemoryRepository.ClaimStockRelease(ctx, id)
}

func (f *FlakyRepository) UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	if f.UpdateErr != nil {
		err := f.UpdateErr
		f.UpdateErr = nil
		return err
	}
	return f.MemoryRepository.UpdateStatus(ctx, order, from)
}
