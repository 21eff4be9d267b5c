package reservation

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/ledger"
)

// recordingLedger wraps a real ledger, records call order and can fail
// releases for chosen products.
type recordingLedger struct {
	ledger.Ledger

	mu           sync.Mutex
	Reserved     []int64
	Released     []int64
	ReleaseErrOn map[int64]error
}

func (r *recordingLedger) Reserve(ctx context.Context, productID int64, quantity int) error {
	r.mu.Lock()
	r.Reserved = append(r.Reserved, productID)
	r.mu.Unlock()
	return r.Ledger.Reserve(ctx, productID, quantity)
}

func (r *recordingLedger) Release(ctx context.Context, productID int64, quantity int) error {
	r.mu.Lock()
	r.Released = append(r.Released, productID)
	failure := r.ReleaseErrOn[productID]
	r.mu.Unlock()
	if failure != nil {
		return failure
	}
	return r.Ledger.Release(ctx, productID, quantity)
}

func newCart(lines ...domain.CartLine) *domain.Cart {
	return &domain.Cart{Owner: domain.CartOwner{UserID: "user-1"}, Lines: lines}
}
