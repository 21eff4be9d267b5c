package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T, stock map[int64]int) *MemoryLedger {
	l := NewMemoryLedger()
	for id, qty := range stock {
		require.NoError(t, l.SetStock(context.Background(), id, qty, true))
	}
	return l
}

func available(t *testing.T, l *MemoryLedger, id int64) int {
	entry, err := l.Stock(context.Background(), id)
	require.NoError(t, err)
	return entry.Available
}

func TestMemoryLedger_Reserve_Success(t *testing.T) {
	l := setupLedger(t, map[int64]int{1: 100})

	require.NoError(t, l.Reserve(context.Background(), 1, 10))
	assert.Equal(t, 90, available(t, l, 1))
}

func TestMemoryLedger_Reserve_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, map[int64]int{1: 5})

	require.NoError(t, l.Reserve(ctx, 1, 3))
	assert.Equal(t, 2, available(t, l, 1))

	err := l.Reserve(ctx, 1, 3)

	var ise *domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, int64(1), ise.ProductID)
	assert.Equal(t, 2, ise.Available)
	assert.Equal(t, 3, ise.Requested)
	assert.Equal(t, 2, available(t, l, 1))
}

func TestMemoryLedger_Reserve_ProductNotFound(t *testing.T) {
	l := setupLedger(t, nil)

	err := l.Reserve(context.Background(), 999, 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestMemoryLedger_Reserve_Inactive(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.SetStock(ctx, 1, 10, false))

	err := l.Reserve(ctx, 1, 1)
	assert.ErrorIs(t, err, domain.ErrProductUnavailable)
	assert.Equal(t, 10, available(t, l, 1))
}

func TestMemoryLedger_Reserve_InvalidQuantity(t *testing.T) {
	l := setupLedger(t, map[int64]int{1: 10})

	assert.ErrorIs(t, l.Reserve(context.Background(), 1, 0), domain.ErrValidation)
	assert.ErrorIs(t, l.Reserve(context.Background(), 1, -4), domain.ErrValidation)
	assert.Equal(t, 10, available(t, l, 1))
}

func TestMemoryLedger_Reserve_CancelledContext(t *testing.T) {
	l := setupLedger(t, map[int64]int{1: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Reserve(ctx, 1, 1), context.Canceled)
	assert.Equal(t, 10, available(t, l, 1))
}

func TestMemoryLedger_ReserveRelease_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, map[int64]int{1: 42})

	require.NoError(t, l.Reserve(ctx, 1, 17))
	require.NoError(t, l.Release(ctx, 1, 17))
	assert.Equal(t, 42, available(t, l, 1))
}

func TestMemoryLedger_Release_NotFound(t *testing.T) {
	l := setupLedger(t, nil)

	err := l.Release(context.Background(), 5, 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestMemoryLedger_ConcurrentReservations(t *testing.T) {
	l := setupLedger(t, map[int64]int{1: 100})

	var wg sync.WaitGroup
	var successCount atomic.Int32

	// 10 x 20 against 100: exactly 5 may succeed
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Reserve(context.Background(), 1, 20); err == nil {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(5), successCount.Load())
	assert.Equal(t, 0, available(t, l, 1))
}

func TestMemoryLedger_ConcurrentMixedQuantitiesNeverOversell(t *testing.T) {
	const initial = 137
	l := setupLedger(t, map[int64]int{1: initial, 2: initial})

	var wg sync.WaitGroup
	var reserved atomic.Int64

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			qty := i%7 + 1
			if err := l.Reserve(context.Background(), 1, qty); err == nil {
				reserved.Add(int64(qty))
			}
			// unrelated product traffic on the same ledger
			if err := l.Reserve(context.Background(), 2, 1); err == nil {
				_ = l.Release(context.Background(), 2, 1)
			}
		}(i)
	}

	wg.Wait()
	left := available(t, l, 1)
	assert.GreaterOrEqual(t, left, 0)
	assert.LessOrEqual(t, reserved.Load(), int64(initial))
	assert.Equal(t, int64(initial), reserved.Load()+int64(left))
	assert.Equal(t, initial, available(t, l, 2))
}
