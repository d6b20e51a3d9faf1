package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eda/internal/platform/kafka/consumer"
)

// Record header names set on every produced event.
const (
	HeaderSource     = "source"
	HeaderDetailType = "detail-type"
)

// Producer is the subset of *kgo.Client the bus needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type pinger interface {
	Ping(ctx context.Context) error
}

// KafkaBus publishes events as records on the topic named after the bus.
// Routing happens on the consuming side, see RecordHandler.
type KafkaBus struct {
	name     string
	producer Producer
	breaker  *CircuitBreaker
	metrics  *Metrics
	logger   *slog.Logger
}

// KafkaOption configures a KafkaBus.
type KafkaOption func(*KafkaBus)

// WithCircuitBreaker fails publishes fast while the breaker is open.
func WithCircuitBreaker(cb *CircuitBreaker) KafkaOption {
	return func(b *KafkaBus) { b.breaker = cb }
}

func WithKafkaMetrics(m *Metrics) KafkaOption {
	return func(b *KafkaBus) { b.metrics = m }
}

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(b *KafkaBus) { b.logger = logger }
}

// NewKafkaBus creates a bus producing to topic name.
func NewKafkaBus(name string, producer Producer, opts ...KafkaOption) *KafkaBus {
	b := &KafkaBus{
		name:     name,
		producer: producer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *KafkaBus) Name() string { return b.name }

// Publish produces one record and waits for the broker ack. The event ID is
// the record key.
func (b *KafkaBus) Publish(ctx context.Context, event DomainEvent) error {
	ctx, span := tracer.Start(ctx, "eventbus.KafkaBus.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("messaging.destination", b.name),
	)

	fail := func(err error) error {
		b.metrics.incPublished(b.name, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return &PublishError{Bus: b.name, EventID: event.ID, Err: err}
	}

	if err := event.Validate(); err != nil {
		return fail(err)
	}
	event.EventBusName = b.name
	value, err := json.Marshal(event)
	if err != nil {
		return fail(fmt.Errorf("encode event: %w", err))
	}

	if b.breaker != nil && !b.breaker.Allow() {
		b.metrics.incBreakerRejected()
		return fail(ErrCircuitOpen)
	}

	record := &kgo.Record{
		Topic: b.name,
		Key:   []byte(event.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderSource, Value: []byte(event.Source)},
			{Key: HeaderDetailType, Value: []byte(event.DetailType)},
		},
	}
	if err := b.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		b.recordBreaker(ctx, false)
		return fail(err)
	}
	b.recordBreaker(ctx, true)
	b.metrics.incPublished(b.name, true)
	return nil
}

func (b *KafkaBus) recordBreaker(ctx context.Context, ok bool) {
	if b.breaker == nil {
		return
	}
	if ok {
		if b.breaker.RecordSuccess() {
			b.metrics.setBreakerState(false)
			b.logger.InfoContext(ctx, "event bus circuit closed", "bus", b.name)
		}
		return
	}
	if b.breaker.RecordFailure() {
		b.metrics.setBreakerState(true)
		b.logger.WarnContext(ctx, "event bus circuit opened", "bus", b.name)
	}
}

// Health pings the brokers when the producer supports it.
func (b *KafkaBus) Health(ctx context.Context) error {
	if p, ok := b.producer.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// RecordHandler feeds consumed bus records into a Router. It waits for the
// deliveries it started, so the consumer commits only after targets ran.
type RecordHandler struct {
	router *Router
	logger *slog.Logger
}

func NewRecordHandler(router *Router, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{router: router, logger: logger}
}

// Handle decodes and routes one record. Records that do not decode are
// logged and skipped; redelivering them would not help.
func (h *RecordHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := Decode(msg.Value)
	if err != nil {
		h.logger.WarnContext(ctx, "skipping undecodable event record",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	ctx, span := tracer.Start(ctx, "eventbus.RecordHandler.Handle", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("event.id", event.ID))

	h.router.Deliver(ctx, event)
	return nil
}
