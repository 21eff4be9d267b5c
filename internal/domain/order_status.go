package domain

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {OrderStatusRefunded},
}

var orderLabels = map[OrderStatus]string{
	OrderStatusPending:   "Awaiting payment",
	OrderStatusConfirmed: "Confirmed",
	OrderStatusShipped:   "Shipped",
	OrderStatusDelivered: "Delivered",
	OrderStatusCancelled: "Cancelled",
	OrderStatusRefunded:  "Refunded",
}

func (s OrderStatus) Valid() bool {
	_, ok := orderLabels[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports CANCELLED, DELIVERED and REFUNDED. A delivered order
// still accepts the refund edge.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusDelivered || s == OrderStatusRefunded
}

// ReleasesStock reports whether entering this status returns the order's
// quantities to the ledger.
func (s OrderStatus) ReleasesStock() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// Label is the customer facing text for the status.
func (s OrderStatus) Label() string {
	if l, ok := orderLabels[s]; ok {
		return l
	}
	return "Unknown"
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
