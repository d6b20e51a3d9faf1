package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Publisher

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eda/internal/eventbus"
	"eda/internal/platform/metrics"
	"eda/internal/users/models"
	dErrors "eda/pkg/domain-errors"
	"eda/pkg/email"
	"eda/pkg/requestcontext"
)

var tracer = otel.Tracer("eda/users/service")

// Store persists user records.
type Store interface {
	Put(ctx context.Context, record models.UserRecord) error
}

// Publisher accepts domain events for routing.
type Publisher interface {
	Publish(ctx context.Context, event eventbus.DomainEvent) error
}

// Service ingests new users: validate, store, announce. The store write and
// the publish are not atomic; a failed publish leaves the record in place.
type Service struct {
	store   Store
	bus     Publisher
	busName string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service publishing to the bus named busName.
func New(store Store, bus Publisher, busName string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("user store is required")
	}
	if bus == nil {
		return nil, errors.New("event publisher is required")
	}
	s := &Service{
		store:   store,
		bus:     bus,
		busName: busName,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateUser stores the user and publishes one user_created event. Each
// collaborator is called at most once; nothing is retried.
func (s *Service) CreateUser(ctx context.Context, req models.CreateUserRequest) (*models.UserRecord, error) {
	ctx, span := tracer.Start(ctx, "users.CreateUser", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	record := models.NewUserRecord(req, requestcontext.Now(ctx))
	span.SetAttributes(attribute.String("user.email_domain", email.Domain(record.Email())))
	requestID := requestcontext.RequestID(ctx)

	if err := s.store.Put(ctx, record); err != nil {
		s.incStoreFailures()
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		s.logger.ErrorContext(ctx, "failed to store user",
			"request_id", requestID,
			"email_domain", email.Domain(record.Email()),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store item")
	}

	event, err := eventbus.NewEvent(s.busName, models.EventSource, models.DetailTypeUserCreated,
		models.NewUserCreatedDetail(record), requestcontext.Now(ctx))
	if err == nil {
		span.SetAttributes(attribute.String("event.id", event.ID))
		err = s.bus.Publish(ctx, event)
	}
	if err != nil {
		s.incPublishFailures()
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		// the record stays; there is no compensating delete
		s.logger.ErrorContext(ctx, "user stored but event not published",
			"request_id", requestID,
			"event_id", event.ID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to send event")
	}

	if s.metrics != nil {
		s.metrics.IncrementUsersCreated()
	}
	s.logger.InfoContext(ctx, "user created",
		"request_id", requestID,
		"event_id", event.ID,
		"email_domain", email.Domain(record.Email()),
	)
	return &record, nil
}

func (s *Service) incStoreFailures() {
	if s.metrics != nil {
		s.metrics.IncrementStoreFailures()
	}
}

func (s *Service) incPublishFailures() {
	if s.metrics != nil {
		s.metrics.IncrementPublishFailures()
	}
}
