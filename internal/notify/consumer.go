package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/observability"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

const readErrorBackoff = time.Second

// Consumer reads published notifications back from Kafka and hands each one
// to a delivery sink, continuing the producer's trace.
type Consumer struct {
	reader MessageReader
	sink   Dispatcher
	logger *zap.Logger
	tracer trace.Tracer
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewConsumer(reader MessageReader, sink Dispatcher, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		sink:   sink,
		logger: observability.OrNop(logger),
		tracer: observability.Tracer("notify"),
	}
}

// Run consumes until ctx is cancelled and then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("starting notification consumer")
	for ctx.Err() == nil {
		c.processMessage(ctx)
	}
	c.logger.Info("notification consumer stopped")
	return c.reader.Close()
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Error("error reading notification", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(readErrorBackoff):
		}
		return
	}

	var n Notification
	if err := json.Unmarshal(m.Value, &n); err != nil {
		c.logger.Error("error parsing notification",
			zap.String("key", string(m.Key)), zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}
	if n.Type == "" || n.AggregateID == "" {
		c.logger.Warn("skipping notification without type or aggregate id",
			zap.Int64("offset", m.Offset))
		return
	}

	msgCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier(m.Headers))
	msgCtx, span := c.tracer.Start(msgCtx, "notify.Deliver",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", m.Topic),
			attribute.String("notification.type", string(n.Type)),
			attribute.String("notification.aggregate_id", n.AggregateID)))
	defer span.End()

	c.sink.Notify(msgCtx, n)
}

func headerCarrier(headers []kafka.Header) propagation.MapCarrier {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return carrier
}
