package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrProductNotFound        = errors.New("product not found")
	ErrProductUnavailable     = errors.New("product unavailable")
	ErrOrderNotFound          = errors.New("order not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInvalidStateTransition = errors.New("invalid order state transition")
	ErrInvalidPaymentState    = errors.New("invalid payment state for this operation")
	ErrActivePaymentExists    = errors.New("order already has an active payment")
	ErrGatewayTimeout         = errors.New("payment gateway timeout")
	ErrGatewayError           = errors.New("payment gateway error")
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrDuplicateCheckout      = errors.New("order for this checkout already exists")
	ErrValidation             = errors.New("validation failed")
	ErrEmptyCart              = fmt.Errorf("%w: cart is empty, nothing to checkout", ErrValidation)
	ErrRefundInProgress       = fmt.Errorf("%w: refund already in progress", ErrInvalidPaymentState)
)

// InsufficientStockError reports the quantity that was available when a
// reservation was refused.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ProductUnavailableError is returned by the reservation engine when a cart
// line points at a product that is missing or deactivated in the ledger.
type ProductUnavailableError struct {
	ProductID int64
	Cause     error
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %d unavailable: %v", e.ProductID, e.Cause)
}

func (e *ProductUnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrProductUnavailable}
	}
	return []error{ErrProductUnavailable, e.Cause}
}

type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal order transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

type PaymentStateError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *PaymentStateError) Error() string {
	return fmt.Sprintf("illegal payment transition %s -> %s", e.From, e.To)
}

func (e *PaymentStateError) Unwrap() error {
	return ErrInvalidPaymentState
}

type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
