package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StockReader is the read-only ledger view. Availability shown to the cart
// is advisory; only a reservation decrements stock.
type StockReader interface {
	Stock(ctx context.Context, productID int64) (domain.StockEntry, error)
}

// LineAvailability reports whether a cart line could be reserved right now.
type LineAvailability struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
	Active    bool  `json:"is_active"`
	OK        bool  `json:"ok"`
}

type Service struct {
	repo    Repository
	cache   Cache
	catalog catalog.Store
	stock   StockReader
	sfg     singleflight.Group // Prevents cache stampede
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(repo Repository, cache Cache, products catalog.Store, stock StockReader, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		catalog: products,
		stock:   stock,
		logger:  observability.OrNop(logger),
		now:     time.Now,
	}
}

// GetCart returns the owner's cart, or an empty one if none is stored.
func (s *Service) GetCart(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	key := owner.Key()
	logger := observability.WithTrace(ctx, s.logger)

	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, owner)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			logger.Warn("cart cache get failed", zap.String("owner", key), zap.Error(err))
		}

		// read the version before the repository so a write landing in
		// between makes the fill below a no-op
		version, errVersion := s.cache.Version(ctx, owner)

		cart, errGet := s.repo.GetCart(ctx, owner)
		if errors.Is(errGet, ErrCartNotFound) {
			return domain.NewCart(owner, s.now()), nil
		}
		if errGet != nil {
			return nil, errGet
		}

		if errVersion != nil {
			logger.Warn("cart cache version failed", zap.String("owner", key), zap.Error(errVersion))
			return cart, nil
		}
		switch errSet := s.cache.Set(ctx, owner, version, cart); {
		case errors.Is(errSet, ErrStaleVersion):
			logger.Debug("cart changed while reading, not cached", zap.String("owner", key))
		case errSet != nil:
			logger.Warn("cart cache set failed", zap.String("owner", key), zap.Error(errSet))
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing one flight must not share one pointer
	return cloneCart(v.(*domain.Cart)), nil
}

// Snapshot reads the cart straight from the repository, bypassing the cache.
// Checkout reserves from this view.
func (s *Service) Snapshot(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.repo.GetCart(ctx, owner)
	if errors.Is(err, ErrCartNotFound) {
		return domain.NewCart(owner, s.now()), nil
	}
	return cart, err
}

// AddItem snapshots the catalog name and price into the cart. Adding a product
// that is already in the cart merges the quantities.
func (s *Service) AddItem(ctx context.Context, owner domain.CartOwner, productID int64, quantity int) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}

	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	current, err := s.Snapshot(ctx, owner)
	if err != nil {
		return nil, err
	}
	wanted := quantity
	if line, ok := current.Line(productID); ok {
		wanted += line.Quantity
	}
	if err := s.checkStock(ctx, productID, wanted); err != nil {
		return nil, err
	}

	line := domain.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		Quantity:  quantity,
		UnitPrice: product.Price,
		AddedAt:   s.now(),
	}
	if err := s.repo.AddLine(ctx, owner, line); err != nil {
		observability.WithTrace(ctx, s.logger).Error("repo add line failed",
			zap.String("owner", owner.Key()), zap.Int64("product_id", productID), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(owner)
	return s.Snapshot(ctx, owner)
}

func (s *Service) UpdateQuantity(ctx context.Context, owner domain.CartOwner, productID int64, quantity int) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, domain.NewValidationError("quantity", "must be positive")
	}
	if err := s.checkStock(ctx, productID, quantity); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLineQuantity(ctx, owner, productID, quantity); err != nil {
		if !errors.Is(err, ErrLineNotFound) {
			observability.WithTrace(ctx, s.logger).Error("repo update line quantity failed",
				zap.String("owner", owner.Key()), zap.Int64("product_id", productID), zap.Error(err))
		}
		return nil, err
	}

	s.invalidateCache(owner)
	return s.Snapshot(ctx, owner)
}

func (s *Service) RemoveItem(ctx context.Context, owner domain.CartOwner, productID int64) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveLine(ctx, owner, productID); err != nil && !errors.Is(err, ErrCartNotFound) {
		observability.WithTrace(ctx, s.logger).Error("repo remove line failed",
			zap.String("owner", owner.Key()), zap.Int64("product_id", productID), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(owner)
	return s.Snapshot(ctx, owner)
}

// ClearCart deletes the cart. Clearing a cart that does not exist succeeds.
func (s *Service) ClearCart(ctx context.Context, owner domain.CartOwner) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if err := s.repo.DeleteCart(ctx, owner); err != nil && !errors.Is(err, ErrCartNotFound) {
		observability.WithTrace(ctx, s.logger).Error("repo delete cart failed",
			zap.String("owner", owner.Key()), zap.Error(err))
		return err
	}

	s.invalidateCache(owner)
	return nil
}

// CheckAvailability compares every line with the ledger without reserving.
func (s *Service) CheckAvailability(ctx context.Context, owner domain.CartOwner) ([]LineAvailability, error) {
	cart, err := s.Snapshot(ctx, owner)
	if err != nil {
		return nil, err
	}

	result := make([]LineAvailability, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		la := LineAvailability{ProductID: line.ProductID, Requested: line.Quantity}
		entry, err := s.stock.Stock(ctx, line.ProductID)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
		case err != nil:
			return nil, fmt.Errorf("stock for product %d: %w", line.ProductID, err)
		default:
			la.Available = entry.Available
			la.Active = entry.Active
			la.OK = entry.Active && entry.Available >= line.Quantity
		}
		result = append(result, la)
	}
	return result, nil
}

func (s *Service) activeProduct(ctx context.Context, productID int64) (*catalog.Product, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, &domain.ProductUnavailableError{ProductID: productID}
	}
	return product, nil
}

func (s *Service) checkStock(ctx context.Context, productID int64, quantity int) error {
	entry, err := s.stock.Stock(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return &domain.ProductUnavailableError{ProductID: productID, Cause: err}
		}
		return fmt.Errorf("stock for product %d: %w", productID, err)
	}
	if !entry.Active {
		return &domain.ProductUnavailableError{ProductID: productID}
	}
	if entry.Available < quantity {
		return &domain.InsufficientStockError{ProductID: productID, Available: entry.Available, Requested: quantity}
	}
	return nil
}

func (s *Service) invalidateCache(owner domain.CartOwner) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, owner); err != nil {
		s.logger.Warn("cart cache invalidate failed", zap.String("owner", owner.Key()), zap.Error(err))
	}
}
