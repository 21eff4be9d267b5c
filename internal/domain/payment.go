package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentMethod is the opaque instrument handed to the gateway, e.g. "card".
type PaymentMethod string

type Payment struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Amount        int64
	Currency      string
	Method        PaymentMethod
	Status        PaymentStatus
	TransactionID string
	FailureReason string
	InitiatedAt   time.Time
	ProcessedAt   *time.Time
	RefundedAt    *time.Time
}

func NewPayment(order *Order, method PaymentMethod, now time.Time) *Payment {
	return &Payment{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Method:      method,
		Status:      PaymentStatusPending,
		InitiatedAt: now,
	}
}

func (p *Payment) transition(next PaymentStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return &PaymentStateError{From: p.Status, To: next}
	}
	p.Status = next
	return nil
}

func (p *Payment) MarkAsSuccess(transactionID string, now time.Time) error {
	if err := p.transition(PaymentStatusSuccess); err != nil {
		return err
	}
	p.TransactionID = transactionID
	p.ProcessedAt = &now
	return nil
}

func (p *Payment) MarkAsFailed(reason string, now time.Time) error {
	if err := p.transition(PaymentStatusFailed); err != nil {
		return err
	}
	p.FailureReason = reason
	p.ProcessedAt = &now
	return nil
}

func (p *Payment) MarkAsRefunded(now time.Time) error {
	if err := p.transition(PaymentStatusRefunded); err != nil {
		return err
	}
	p.ProcessedAt = &now
	p.RefundedAt = &now
	return nil
}
