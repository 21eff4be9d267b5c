package domain

import (
	"net/mail"
	"time"

	"github.com/google/uuid"
)

// OrderOwner is either a registered user or a guest e-mail, exactly one.
type OrderOwner struct {
	UserID     string `json:"user_id,omitempty"`
	GuestEmail string `json:"guest_email,omitempty"`
}

func (o OrderOwner) Validate() error {
	switch {
	case o.UserID == "" && o.GuestEmail == "":
		return NewValidationError("owner", "user id or guest email is required")
	case o.UserID != "" && o.GuestEmail != "":
		return NewValidationError("owner", "order cannot have both a user id and a guest email")
	case o.GuestEmail != "":
		if _, err := mail.ParseAddress(o.GuestEmail); err != nil {
			return NewValidationError("guest_email", "not a valid address")
		}
	}
	return nil
}

type OrderLine struct {
	ProductID    int64  `json:"product_id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	LineSubtotal int64  `json:"line_subtotal"`
}

type Order struct {
	ID             uuid.UUID
	IdempotencyKey string
	Owner          OrderOwner
	Lines          []OrderLine
	Status         OrderStatus
	Currency       string
	TotalAmount    int64
	StockReleased  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
	RefundedAt     *time.Time
}

// NewOrder snapshots the given lines into a PENDING order. Line subtotals and
// the order total are computed here and never recomputed from the catalog.
func NewOrder(owner OrderOwner, lines []OrderLine, currency string, now time.Time) (*Order, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, NewValidationError("lines", "order must contain at least one line")
	}
	if currency == "" {
		return nil, NewValidationError("currency", "is required")
	}

	snapshot := make([]OrderLine, 0, len(lines))
	var total int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, NewValidationError("quantity", "must be positive")
		}
		if l.UnitPrice < 0 {
			return nil, NewValidationError("unit_price", "must not be negative")
		}
		l.LineSubtotal = l.UnitPrice * int64(l.Quantity)
		total += l.LineSubtotal
		snapshot = append(snapshot, l)
	}

	return &Order{
		ID:          uuid.New(),
		Owner:       owner,
		Lines:       snapshot,
		Status:      OrderStatusPending,
		Currency:    currency,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// LinesTotal sums the line subtotals.
func (o *Order) LinesTotal() int64 {
	var total int64
	for _, l := range o.Lines {
		total += l.LineSubtotal
	}
	return total
}

// ReservedLines is the quantity per product held for this order.
func (o *Order) ReservedLines() []ReservedLine {
	lines := make([]ReservedLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, ReservedLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return lines
}

// Transition moves the order along a legal edge and stamps the matching
// timestamp. The order is left untouched when the edge is illegal.
func (o *Order) Transition(next OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return &TransitionError{From: o.Status, To: next}
	}
	o.Status = next
	o.UpdatedAt = now
	switch next {
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
	case OrderStatusRefunded:
		o.RefundedAt = &now
	}
	return nil
}
