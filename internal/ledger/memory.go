package ledger

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fjod/storefront/internal/domain"
)

const lockStripes = 256

// MemoryLedger keeps stock in a map. Each product id hashes onto one of a
// fixed set of mutexes, so reserve/release on the same product are serialized
// while unrelated products rarely contend.
type MemoryLedger struct {
	stripes [lockStripes]sync.Mutex

	mu     sync.RWMutex // guards the map itself, not the entries
	stocks map[int64]*domain.StockEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		stocks: make(map[int64]*domain.StockEntry),
	}
}

func (l *MemoryLedger) stripe(productID int64) *sync.Mutex {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(productID))
	return &l.stripes[xxhash.Sum64(buf[:])%lockStripes]
}

func (l *MemoryLedger) entry(productID int64) (*domain.StockEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.stocks[productID]
	return e, ok
}

func (l *MemoryLedger) Reserve(ctx context.Context, productID int64, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := l.stripe(productID)
	lock.Lock()
	defer lock.Unlock()

	stock, exists := l.entry(productID)
	if !exists {
		return domain.ErrProductNotFound
	}
	if !stock.Active {
		return domain.ErrProductUnavailable
	}
	if stock.Available < quantity {
		return &domain.InsufficientStockError{
			ProductID: productID,
			Available: stock.Available,
			Requested: quantity,
		}
	}

	stock.Available -= quantity
	stock.UpdatedAt = time.Now()
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, productID int64, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}

	lock := l.stripe(productID)
	lock.Lock()
	defer lock.Unlock()

	stock, exists := l.entry(productID)
	if !exists {
		return domain.ErrProductNotFound
	}

	stock.Available += quantity
	stock.UpdatedAt = time.Now()
	return nil
}

func (l *MemoryLedger) Stock(_ context.Context, productID int64) (domain.StockEntry, error) {
	lock := l.stripe(productID)
	lock.Lock()
	defer lock.Unlock()

	stock, exists := l.entry(productID)
	if !exists {
		return domain.StockEntry{}, domain.ErrProductNotFound
	}
	return *stock, nil
}

func (l *MemoryLedger) SetStock(_ context.Context, productID int64, quantity int, active bool) error {
	if quantity < 0 {
		return domain.NewValidationError("quantity", "must not be negative")
	}

	lock := l.stripe(productID)
	lock.Lock()
	defer lock.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stocks[productID] = &domain.StockEntry{
		ProductID: productID,
		Available: quantity,
		Active:    active,
		UpdatedAt: time.Now(),
	}
	return nil
}
