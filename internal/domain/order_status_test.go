package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	legal := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusConfirmed}:   true,
		{OrderStatusPending, OrderStatusCancelled}:   true,
		{OrderStatusConfirmed, OrderStatusShipped}:   true,
		{OrderStatusConfirmed, OrderStatusCancelled}: true,
		{OrderStatusShipped, OrderStatusDelivered}:   true,
		{OrderStatusDelivered, OrderStatusRefunded}:  true,
	}

	for _, from := range allOrderStatuses {
		for _, to := range allOrderStatuses {
			want := legal[[2]OrderStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrderStatus_TerminalAndLabels(t *testing.T) {
	tests := []struct {
		name     string
		status   OrderStatus
		terminal bool
		releases bool
		label    string
	}{
		{name: "pending", status: OrderStatusPending, label: "Awaiting payment"},
		{name: "confirmed", status: OrderStatusConfirmed, label: "Confirmed"},
		{name: "shipped", status: OrderStatusShipped, label: "Shipped"},
		{name: "delivered", status: OrderStatusDelivered, terminal: true, label: "Delivered"},
		{name: "cancelled", status: OrderStatusCancelled, terminal: true, releases: true, label: "Cancelled"},
		{name: "refunded", status: OrderStatusRefunded, terminal: true, releases: true, label: "Refunded"},
		{name: "unknown", status: OrderStatus("LOST"), label: "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.releases, tt.status.ReleasesStock())
			assert.Equal(t, tt.label, tt.status.Label())
		})
	}
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusSuccess))
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusFailed))
	assert.True(t, PaymentStatusSuccess.CanTransitionTo(PaymentStatusRefunded))

	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusSuccess))
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusPending))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusRefunded))
	assert.False(t, PaymentStatusPending.CanTransitionTo(PaymentStatusRefunded))

	assert.False(t, PaymentStatusFailed.IsActive())
	assert.True(t, PaymentStatusRefunded.IsActive())
	assert.Equal(t, "Paid", PaymentStatusSuccess.Label())
}
