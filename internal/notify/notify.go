package notify

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/observability"
	"go.uber.org/zap"
)

type EventType string

const (
	EventOrderPlaced        EventType = "OrderPlaced"
	EventOrderStatusChanged EventType = "OrderStatusChanged"
	EventPaymentProcessed   EventType = "PaymentProcessed"
)

// Notification is sent after a state change has been committed.
type Notification struct {
	Type        EventType `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	Status      string    `json:"status"`
	StatusLabel string    `json:"status_label"`
	Recipient   string    `json:"recipient,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Dispatcher delivers notifications fire-and-forget. Implementations must not
// block the caller and have no way to report failure back.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification)
}

// LogDispatcher writes notifications to the log only.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: observability.OrNop(logger)}
}

func (d *LogDispatcher) Notify(ctx context.Context, n Notification) {
	observability.WithTrace(ctx, d.logger).Info("notification",
		zap.String("event_type", string(n.Type)),
		zap.String("aggregate_id", n.AggregateID),
		zap.String("status", n.Status),
		zap.String("recipient", n.Recipient))
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}
