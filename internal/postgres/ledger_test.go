package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := NewLedger(db)
	ctx := context.Background()

	t.Run("reserve and release round trip", func(t *testing.T) {
		require.NoError(t, ledger.SetStock(ctx, 100, 10, true))

		require.NoError(t, ledger.Reserve(ctx, 100, 4))
		entry, err := ledger.Stock(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 6, entry.Available)

		require.NoError(t, ledger.Release(ctx, 100, 4))
		entry, err = ledger.Stock(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 10, entry.Available)
	})

	t.Run("insufficient stock leaves row untouched", func(t *testing.T) {
		require.NoError(t, ledger.SetStock(ctx, 101, 5, true))

		err := ledger.Reserve(ctx, 101, 10)
		var stockErr *domain.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 5, stockErr.Available)
		assert.Equal(t, 10, stockErr.Requested)

		entry, err := ledger.Stock(ctx, 101)
		require.NoError(t, err)
		assert.Equal(t, 5, entry.Available)
	})

	t.Run("unknown and inactive products", func(t *testing.T) {
		require.ErrorIs(t, ledger.Reserve(ctx, 9999, 1), domain.ErrProductNotFound)
		require.ErrorIs(t, ledger.Release(ctx, 9999, 1), domain.ErrProductNotFound)
		_, err := ledger.Stock(ctx, 9999)
		require.ErrorIs(t, err, domain.ErrProductNotFound)

		require.ErrorIs(t, ledger.Reserve(ctx, 5, 1), domain.ErrProductUnavailable)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		require.ErrorIs(t, ledger.Reserve(ctx, 1, 0), domain.ErrValidation)
		require.ErrorIs(t, ledger.SetStock(ctx, 1, -1, true), domain.ErrValidation)
	})

	t.Run("concurrent reservations never oversell", func(t *testing.T) {
		require.NoError(t, ledger.SetStock(ctx, 102, 100, true))

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := ledger.Reserve(ctx, 102, 20); err == nil {
					successes.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(5), successes.Load())
		entry, err := ledger.Stock(ctx, 102)
		require.NoError(t, err)
		assert.Equal(t, 0, entry.Available)
	})
}
