package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

// Ledger keeps stock in the stock table. Reserve locks the row for the
// duration of one short transaction.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Reserve(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return domain.NewValidationError("quantity", "must be positive")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		available int
		active    bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT available_quantity, is_active FROM stock WHERE product_id = $1 FOR UPDATE`,
		productID,
	).Scan(&available, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("lock stock row: %w", err)
	}

	if !active {
		return domain.ErrProductUnavailable
	}
	if available < quantity {
		return &domain.InsufficientStockError{ProductID: productID, Available: available, Requested: quantity}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE stock SET available_quantity = available_quantity - $2, updated_at = NOW() WHERE product_id = $1`,
		productID, quantity,
	); err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reserve: %w", err)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return domain.NewValidationError("quantity", "must be positive")
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE stock SET available_quantity = available_quantity + $2, updated_at = NOW() WHERE product_id = $1`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (l *Ledger) Stock(ctx context.Context, productID int64) (domain.StockEntry, error) {
	entry := domain.StockEntry{ProductID: productID}
	err := l.db.QueryRowContext(ctx,
		`SELECT available_quantity, is_active, updated_at FROM stock WHERE product_id = $1`,
		productID,
	).Scan(&entry.Available, &entry.Active, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockEntry{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.StockEntry{}, fmt.Errorf("query stock: %w", err)
	}
	return entry, nil
}

func (l *Ledger) SetStock(ctx context.Context, productID int64, quantity int, active bool) error {
	if quantity < 0 {
		return domain.NewValidationError("quantity", "must not be negative")
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO stock (product_id, available_quantity, is_active, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (product_id) DO UPDATE
		 SET available_quantity = EXCLUDED.available_quantity,
		     is_active = EXCLUDED.is_active,
		     updated_at = NOW()`,
		productID, quantity, active)
	if err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}
	return nil
}
