package payment

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

// Repository persists payments. FAILED payments stay as an audit trail and do
// not block a new attempt for the same order.
type Repository interface {
	// Create returns domain.ErrActivePaymentExists if the order already has a
	// payment that is not FAILED.
	Create(ctx context.Context, payment *domain.Payment) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error)
	// Update writes the payment only if the stored status is still from.
	Update(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus) error
	// ClaimRefund marks a SUCCESS payment as being refunded and reports
	// whether this caller won the claim. Only the winner may call the gateway.
	ClaimRefund(ctx context.Context, id uuid.UUID) (bool, error)
	// ReleaseRefundClaim undoes a claim whose gateway refund failed.
	ReleaseRefundClaim(ctx context.Context, id uuid.UUID) error
}
