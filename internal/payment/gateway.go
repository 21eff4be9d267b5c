package payment

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeDeclined Outcome = "declined"
	OutcomeError    Outcome = "error"
)

type AuthorizeRequest struct {
	Amount   int64
	Currency string
	Method   domain.PaymentMethod
	// IdempotencyKey lets the gateway collapse retried attempts of one payment.
	IdempotencyKey string
}

type AuthorizeResult struct {
	TransactionID string
	Outcome       Outcome
	Reason        string
}

// Gateway is the external payment provider. Callers always pass a context
// with a deadline.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error)
	Refund(ctx context.Context, transactionID string, amount int64, currency string) error
}
