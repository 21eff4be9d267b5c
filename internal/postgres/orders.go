package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const orderColumns = `id, idempotency_key, user_id, guest_email, status, currency, total_amount, lines,
	stock_released, created_at, updated_at, shipped_at, delivered_at, cancelled_at, refunded_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal order lines: %w", err)
	}

	query := `INSERT INTO orders (id, idempotency_key, user_id, guest_email, status, currency, total_amount,
	          lines, stock_released, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, insertErr := r.db.ExecContext(ctx, query,
		order.ID,
		nullString(order.IdempotencyKey),
		nullString(order.Owner.UserID),
		nullString(order.Owner.GuestEmail),
		order.Status,
		order.Currency,
		order.TotalAmount,
		linesJSON,
		order.StockReleased,
		order.CreatedAt,
		order.UpdatedAt)

	if insertErr != nil {
		if isUniqueViolation(insertErr) {
			return domain.ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
	return scanOrder(row)
}

func (r *OrderRepository) ListByOwner(ctx context.Context, owner domain.OrderOwner) ([]*domain.Order, error) {
	column, value := "user_id", owner.UserID
	if owner.UserID == "" {
		column, value = "guest_email", owner.GuestEmail
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+column+` = $1 ORDER BY created_at DESC`, value)
	if err != nil {
		return nil, fmt.Errorf("query orders by owner: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, updated_at = $2, shipped_at = $3, delivered_at = $4, cancelled_at = $5, refunded_at = $6
		 WHERE id = $7 AND status = $8`,
		order.Status,
		order.UpdatedAt,
		order.ShippedAt,
		order.DeliveredAt,
		order.CancelledAt,
		order.RefundedAt,
		order.ID,
		from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current domain.OrderStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, order.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("query order status: %w", err)
	}
	return &domain.TransitionError{From: current, To: order.Status}
}

func (r *OrderRepository) ClaimStockRelease(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET stock_released = TRUE WHERE id = $1 AND stock_released = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("claim stock release: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("query order: %w", err)
	}
	if !exists {
		return false, domain.ErrOrderNotFound
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order                                       domain.Order
		key, userID, guestEmail                     sql.NullString
		linesJSON                                   []byte
		shippedAt, deliveredAt, cancelledAt, refund sql.NullTime
	)
	err := row.Scan(
		&order.ID,
		&key,
		&userID,
		&guestEmail,
		&order.Status,
		&order.Currency,
		&order.TotalAmount,
		&linesJSON,
		&order.StockReleased,
		&order.CreatedAt,
		&order.UpdatedAt,
		&shippedAt,
		&deliveredAt,
		&cancelledAt,
		&refund,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(linesJSON, &order.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}

	order.IdempotencyKey = key.String
	order.Owner = domain.OrderOwner{UserID: userID.String, GuestEmail: guestEmail.String}
	order.ShippedAt = nullTime(shippedAt)
	order.DeliveredAt = nullTime(deliveredAt)
	order.CancelledAt = nullTime(cancelledAt)
	order.RefundedAt = nullTime(refund)
	return &order, nil
}
