package domain

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusSuccess  PaymentStatus = "SUCCESS"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusSuccess, PaymentStatusFailed},
	PaymentStatusSuccess: {PaymentStatusRefunded},
}

var paymentLabels = map[PaymentStatus]string{
	PaymentStatusPending:  "Processing",
	PaymentStatusSuccess:  "Paid",
	PaymentStatusFailed:   "Payment failed",
	PaymentStatusRefunded: "Refunded",
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsActive reports whether the payment counts against the one-payment-per-order
// rule. FAILED attempts do not.
func (s PaymentStatus) IsActive() bool {
	return s != PaymentStatusFailed
}

func (s PaymentStatus) Label() string {
	if l, ok := paymentLabels[s]; ok {
		return l
	}
	return "Unknown"
}

func (s PaymentStatus) String() string {
	return string(s)
}
