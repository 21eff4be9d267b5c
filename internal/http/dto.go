package http

import (
	"time"

	"github.com/fjod/storefront/internal/domain"
)

type OrderLineDTO struct {
	ProductID    int64  `json:"product_id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	LineSubtotal int64  `json:"line_subtotal"`
}

type OrderResponseDTO struct {
	ID          string            `json:"id"`
	Owner       domain.OrderOwner `json:"owner"`
	Status      string            `json:"status"`
	StatusLabel string            `json:"status_label"`
	TotalAmount int64             `json:"total_amount"`
	Currency    string            `json:"currency"`
	Lines       []OrderLineDTO    `json:"lines"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ShippedAt   *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time        `json:"refunded_at,omitempty"`
}

type PaymentResponseDTO struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Method        string     `json:"payment_method"`
	Status        string     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	TransactionID string     `json:"transaction_id,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	InitiatedAt   time.Time  `json:"initiated_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
}

type CartResponseDTO struct {
	Owner     domain.CartOwner  `json:"owner"`
	Lines     []domain.CartLine `json:"lines"`
	Total     int64             `json:"total"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type CheckoutResponseDTO struct {
	Order     *OrderResponseDTO   `json:"order,omitempty"`
	Payment   *PaymentResponseDTO `json:"payment,omitempty"`
	Duplicate bool                `json:"duplicate,omitempty"`
	Error     *ErrorResponse      `json:"error,omitempty"`
}

func toOrderDTO(o *domain.Order) *OrderResponseDTO {
	if o == nil {
		return nil
	}
	lines := make([]OrderLineDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineDTO(l))
	}
	return &OrderResponseDTO{
		ID:          o.ID.String(),
		Owner:       o.Owner,
		Status:      string(o.Status),
		StatusLabel: o.Status.Label(),
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		Lines:       lines,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		ShippedAt:   o.ShippedAt,
		DeliveredAt: o.DeliveredAt,
		CancelledAt: o.CancelledAt,
		RefundedAt:  o.RefundedAt,
	}
}

func toPaymentDTO(p *domain.Payment) *PaymentResponseDTO {
	if p == nil {
		return nil
	}
	return &PaymentResponseDTO{
		ID:            p.ID.String(),
		OrderID:       p.OrderID.String(),
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        string(p.Method),
		Status:        string(p.Status),
		StatusLabel:   p.Status.Label(),
		TransactionID: p.TransactionID,
		FailureReason: p.FailureReason,
		InitiatedAt:   p.InitiatedAt,
		ProcessedAt:   p.ProcessedAt,
		RefundedAt:    p.RefundedAt,
	}
}

func toCartDTO(c *domain.Cart) CartResponseDTO {
	lines := c.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return CartResponseDTO{
		Owner:     c.Owner,
		Lines:     lines,
		Total:     c.Total(),
		UpdatedAt: c.UpdatedAt,
	}
}
