package notify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/fjod/storefront/internal/observability"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the dispatcher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		QueueSize:     1024,
		BatchSize:     100,
		FlushInterval: 500 * time.Millisecond,
		WriteTimeout:  5 * time.Second,
	}
}

type queued struct {
	n     Notification
	trace propagation.MapCarrier
}

// KafkaDispatcher buffers notifications in memory and publishes them in
// batches from Run. Notify never blocks; when the buffer is full the
// notification is dropped and counted.
type KafkaDispatcher struct {
	writer  MessageWriter
	cfg     KafkaConfig
	queue   chan queued
	logger  *zap.Logger
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewKafkaWriter builds a writer for the notification topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
}

func NewKafkaDispatcher(writer MessageWriter, cfg KafkaConfig, logger *zap.Logger) *KafkaDispatcher {
	def := DefaultKafkaConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &KafkaDispatcher{
		writer: writer,
		cfg:    cfg,
		queue:  make(chan queued, cfg.QueueSize),
		logger: observability.OrNop(logger),
	}
}

func (d *KafkaDispatcher) Notify(ctx context.Context, n Notification) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	select {
	case d.queue <- queued{n: n, trace: carrier}:
	default:
		d.dropped.Add(1)
		observability.WithTrace(ctx, d.logger).Warn("notification queue full, dropping",
			zap.String("event_type", string(n.Type)),
			zap.String("aggregate_id", n.AggregateID))
	}
}

// Dropped reports notifications discarded because the queue was full.
func (d *KafkaDispatcher) Dropped() int64 { return d.dropped.Load() }

// Failed reports notifications lost to write errors.
func (d *KafkaDispatcher) Failed() int64 { return d.failed.Load() }

// Run publishes queued notifications until ctx is cancelled, then flushes
// what is left and closes the writer.
func (d *KafkaDispatcher) Run(ctx context.Context) error {
	d.logger.Info("starting notification dispatcher",
		zap.Duration("flush_interval", d.cfg.FlushInterval),
		zap.Int("batch_size", d.cfg.BatchSize))

	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			d.logger.Info("notification dispatcher stopped",
				zap.Int64("dropped", d.Dropped()),
				zap.Int64("failed", d.Failed()))
			return d.writer.Close()
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain publishes everything currently queued, BatchSize at a time.
func (d *KafkaDispatcher) drain(ctx context.Context) {
	for {
		batch := d.take()
		if len(batch) == 0 {
			return
		}
		d.publish(ctx, batch)
		if len(batch) < d.cfg.BatchSize {
			return
		}
	}
}

func (d *KafkaDispatcher) take() []queued {
	batch := make([]queued, 0, d.cfg.BatchSize)
	for len(batch) < d.cfg.BatchSize {
		select {
		case q := <-d.queue:
			batch = append(batch, q)
		default:
			return batch
		}
	}
	return batch
}

func (d *KafkaDispatcher) publish(ctx context.Context, batch []queued) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, q := range batch {
		msg, err := toMessage(q)
		if err != nil {
			d.failed.Add(1)
			d.logger.Error("failed to encode notification",
				zap.String("aggregate_id", q.n.AggregateID), zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, d.cfg.WriteTimeout)
	defer cancel()

	if err := d.writer.WriteMessages(writeCtx, msgs...); err != nil {
		d.failed.Add(int64(len(msgs)))
		d.logger.Error("failed to publish notifications",
			zap.Int("count", len(msgs)), zap.Error(err))
		return
	}
	d.logger.Debug("published notifications", zap.Int("count", len(msgs)))
}

func toMessage(q queued) (kafka.Message, error) {
	payload, err := json.Marshal(q.n)
	if err != nil {
		return kafka.Message{}, err
	}
	headers := []kafka.Header{{Key: "event_type", Value: []byte(q.n.Type)}}
	for k, v := range q.trace {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     []byte(q.n.AggregateID),
		Value:   payload,
		Headers: headers,
		Time:    q.n.OccurredAt,
	}, nil
}
