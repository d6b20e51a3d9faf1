// Package notify turns user_created events into outbound notifications.
// The Dispatcher is a bus target: it never returns errors to the bus, it
// logs and drops.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eda/internal/eventbus"
)

// TargetID is the id routing rules use for the dispatcher.
const TargetID = "notify-user"

// Subject is the fixed notification subject.
const Subject = "User Created"

const messageFormat = "User successfully created with email: %s"

// Stages at which a consumed event can be dropped.
const (
	StageExtract = "extract"
	StageSend    = "send"
)

var (
	// ErrMissingEmail is returned when the detail has no non-empty string
	// "email" field.
	ErrMissingEmail = errors.New("event detail has no email")
	// ErrMissingChannel is returned by senders given an empty ChannelRef.
	ErrMissingChannel = errors.New("notification channel is required")
)

var tracer = otel.Tracer("eda/notify")

// NotificationRequest is one message for the external channel.
type NotificationRequest struct {
	ChannelRef string `json:"channel_ref"`
	Subject    string `json:"subject"`
	Message    string `json:"message"`
}

//go:generate mockgen -source=notify.go -destination=mocks/mocks.go -package=mocks Sender

// Sender delivers a notification to an external channel.
type Sender interface {
	Send(ctx context.Context, req NotificationRequest) error
}

// ConsumerError records why an event produced no notification.
type ConsumerError struct {
	EventID string
	Stage   string
	Err     error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("notify %s: %s: %v", e.EventID, e.Stage, e.Err)
}

func (e *ConsumerError) Unwrap() error { return e.Err }

// BuildRequest derives the notification for event. Only the detail's email
// is read.
func BuildRequest(event eventbus.DomainEvent, channelRef string) (NotificationRequest, error) {
	var detail map[string]any
	if err := event.DecodeDetail(&detail); err != nil {
		return NotificationRequest{}, fmt.Errorf("%w: %v", ErrMissingEmail, err)
	}
	email, ok := detail["email"].(string)
	if !ok || email == "" {
		return NotificationRequest{}, ErrMissingEmail
	}
	return NotificationRequest{
		ChannelRef: channelRef,
		Subject:    Subject,
		Message:    fmt.Sprintf(messageFormat, email),
	}, nil
}

// Dispatcher sends one notification per consumed event. No retries, no
// dead-letter.
type Dispatcher struct {
	sender     Sender
	channelRef string
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher sending to channelRef through sender.
func NewDispatcher(sender Sender, channelRef string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:     sender,
		channelRef: channelRef,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Consume implements eventbus.Target.
func (d *Dispatcher) Consume(ctx context.Context, event eventbus.DomainEvent) {
	ctx, span := tracer.Start(ctx, "notify.Consume", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("event.id", event.ID))

	if err := d.handle(ctx, event); err != nil {
		var cerr *ConsumerError
		stage := "unknown"
		if errors.As(err, &cerr) {
			stage = cerr.Stage
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		d.metrics.incDropped(stage)
		d.logger.ErrorContext(ctx, "notification dropped",
			"event_id", event.ID,
			"stage", stage,
			"channel", d.channelRef,
			"error", err,
		)
		return
	}
	d.metrics.incSent()
	d.logger.InfoContext(ctx, "notification sent",
		"event_id", event.ID,
		"channel", d.channelRef,
	)
}

func (d *Dispatcher) handle(ctx context.Context, event eventbus.DomainEvent) error {
	req, err := BuildRequest(event, d.channelRef)
	if err != nil {
		return &ConsumerError{EventID: event.ID, Stage: StageExtract, Err: err}
	}
	if err := d.sender.Send(ctx, req); err != nil {
		return &ConsumerError{EventID: event.ID, Stage: StageSend, Err: err}
	}
	return nil
}
