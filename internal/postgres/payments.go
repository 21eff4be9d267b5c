package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const paymentColumns = `id, order_id, amount, currency, method, status, transaction_id, failure_reason,
	initiated_at, processed_at, refunded_at`

// PaymentRepository relies on the partial unique index uq_payments_active_order
// for the one-active-payment rule.
type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID,
		p.OrderID,
		p.Amount,
		p.Currency,
		string(p.Method),
		p.Status,
		nullString(p.TransactionID),
		nullString(p.FailureReason),
		p.InitiatedAt,
		p.ProcessedAt,
		p.RefundedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActivePaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *PaymentRepository) GetActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 AND status <> 'FAILED'`, orderID))
}

func (r *PaymentRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY initiated_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payments by order: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment, from domain.PaymentStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments
		 SET status = $1, transaction_id = $2, failure_reason = $3, processed_at = $4, refunded_at = $5
		 WHERE id = $6 AND status = $7`,
		p.Status,
		nullString(p.TransactionID),
		nullString(p.FailureReason),
		p.ProcessedAt,
		p.RefundedAt,
		p.ID,
		from)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current domain.PaymentStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM payments WHERE id = $1`, p.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrPaymentNotFound
	}
	if err != nil {
		return fmt.Errorf("query payment status: %w", err)
	}
	return &domain.PaymentStateError{From: current, To: p.Status}
}

func (r *PaymentRepository) ClaimRefund(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET refund_requested = TRUE
		 WHERE id = $1 AND status = 'SUCCESS' AND refund_requested = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("claim refund: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("query payment: %w", err)
	}
	if !exists {
		return false, domain.ErrPaymentNotFound
	}
	return false, nil
}

func (r *PaymentRepository) ReleaseRefundClaim(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET refund_requested = FALSE WHERE id = $1 AND status = 'SUCCESS'`, id)
	if err != nil {
		return fmt.Errorf("release refund claim: %w", err)
	}
	return nil
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		p                       domain.Payment
		method                  string
		txID, reason            sql.NullString
		processedAt, refundedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Amount,
		&p.Currency,
		&method,
		&p.Status,
		&txID,
		&reason,
		&p.InitiatedAt,
		&processedAt,
		&refundedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Method = domain.PaymentMethod(method)
	p.TransactionID = txID.String
	p.FailureReason = reason.String
	p.ProcessedAt = nullTime(processedAt)
	p.RefundedAt = nullTime(refundedAt)
	return &p, nil
}
