package ledger

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
)

// Ledger is the authoritative record of per-product available quantity.
type Ledger interface {
	// Reserve atomically decrements the available quantity. On failure nothing
	// is mutated and the error is *domain.InsufficientStockError,
	// domain.ErrProductNotFound or domain.ErrProductUnavailable.
	Reserve(ctx context.Context, productID int64, quantity int) error

	// Release unconditionally adds quantity back. Callers must invoke it at
	// most once per successful Reserve.
	Release(ctx context.Context, productID int64, quantity int) error

	// Stock returns the current entry without locking it for update.
	Stock(ctx context.Context, productID int64) (domain.StockEntry, error)

	// SetStock creates or overwrites an entry (catalog management).
	SetStock(ctx context.Context, productID int64, quantity int, active bool) error
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return domain.NewValidationError("quantity", "must be positive")
	}
	return nil
}
