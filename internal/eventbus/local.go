package eventbus

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"eda/pkg/platform/sentinel"
)

var tracer = otel.Tracer("eda/eventbus")

// LocalBus routes events in-process. Publish returns once deliveries are
// started; targets run after the caller has moved on.
type LocalBus struct {
	name    string
	router  *Router
	metrics *Metrics
	closed  atomic.Bool
}

// NewLocalBus creates a bus named name that hands events to router.
func NewLocalBus(name string, router *Router, metrics *Metrics) *LocalBus {
	return &LocalBus{name: name, router: router, metrics: metrics}
}

func (b *LocalBus) Name() string { return b.name }

// Publish accepts event unless the bus is closed or the event is malformed.
func (b *LocalBus) Publish(ctx context.Context, event DomainEvent) error {
	ctx, span := tracer.Start(ctx, "eventbus.LocalBus.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.detail_type", event.DetailType),
	)

	if b.closed.Load() {
		b.metrics.incPublished(b.name, false)
		return &PublishError{Bus: b.name, EventID: event.ID, Err: sentinel.ErrClosed}
	}
	if err := event.Validate(); err != nil {
		b.metrics.incPublished(b.name, false)
		return &PublishError{Bus: b.name, EventID: event.ID, Err: err}
	}
	event.EventBusName = b.name
	n := b.router.Dispatch(ctx, event)
	span.SetAttributes(attribute.Int("event.deliveries", n))
	b.metrics.incPublished(b.name, true)
	return nil
}

// Close refuses further publishes and waits for in-flight deliveries.
func (b *LocalBus) Close(ctx context.Context) error {
	b.closed.Store(true)
	return b.router.Wait(ctx)
}

func (b *LocalBus) Health(context.Context) error {
	if b.closed.Load() {
		return sentinel.ErrClosed
	}
	return nil
}
