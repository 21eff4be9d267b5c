package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	orders := NewOrderRepository(db)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	order := newTestOrder(t, domain.OrderOwner{UserID: "user-5"}, "")
	require.NoError(t, orders.Create(ctx, order))

	now := time.Now().UTC().Truncate(time.Microsecond)
	first := domain.NewPayment(order, "card", now)
	require.NoError(t, repo.Create(ctx, first))

	t.Run("second active payment rejected", func(t *testing.T) {
		err := repo.Create(ctx, domain.NewPayment(order, "card", now))
		require.ErrorIs(t, err, domain.ErrActivePaymentExists)
	})

	t.Run("failed payment frees the order", func(t *testing.T) {
		require.NoError(t, first.MarkAsFailed("insufficient_funds", now))
		require.NoError(t, repo.Update(ctx, first, domain.PaymentStatusPending))

		retry := domain.NewPayment(order, "card", now.Add(time.Second))
		require.NoError(t, repo.Create(ctx, retry))

		active, err := repo.GetActiveByOrderID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, retry.ID, active.ID)

		require.NoError(t, retry.MarkAsSuccess("TXN-42", now))
		require.NoError(t, repo.Update(ctx, retry, domain.PaymentStatusPending))

		fetched, err := repo.Get(ctx, retry.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusSuccess, fetched.Status)
		assert.Equal(t, "TXN-42", fetched.TransactionID)
		require.NotNil(t, fetched.ProcessedAt)

		all, err := repo.ListByOrderID(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, first.ID, all[0].ID)
		assert.Equal(t, "insufficient_funds", all[0].FailureReason)
	})

	t.Run("stale update rejected", func(t *testing.T) {
		stale, err := repo.GetActiveByOrderID(ctx, order.ID)
		require.NoError(t, err)
		require.NoError(t, stale.MarkAsRefunded(now))

		err = repo.Update(ctx, stale, domain.PaymentStatusPending)
		require.ErrorIs(t, err, domain.ErrInvalidPaymentState)
	})

	t.Run("refund claim is won once", func(t *testing.T) {
		active, err := repo.GetActiveByOrderID(ctx, order.ID)
		require.NoError(t, err)

		claimed, err := repo.ClaimRefund(ctx, active.ID)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = repo.ClaimRefund(ctx, active.ID)
		require.NoError(t, err)
		assert.False(t, claimed)

		require.NoError(t, repo.ReleaseRefundClaim(ctx, active.ID))
		claimed, err = repo.ClaimRefund(ctx, active.ID)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = repo.ClaimRefund(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, claimed, "failed payment cannot be refunded")

		_, err = repo.ClaimRefund(ctx, uuid.New())
		require.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.New())
		require.ErrorIs(t, err, domain.ErrPaymentNotFound)
		_, err = repo.GetActiveByOrderID(ctx, uuid.New())
		require.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})
}
