package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// Target receives routed events. Consume has no result: a target that
// fails is expected to log and move on.
type Target interface {
	Consume(ctx context.Context, event DomainEvent)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, event DomainEvent)

func (f TargetFunc) Consume(ctx context.Context, event DomainEvent) { f(ctx, event) }

// Router matches events against a RuleSet and runs every selected target in
// its own goroutine. Deliveries never share a context with the publisher and
// a panic in one target does not reach the others.
type Router struct {
	rules           *RuleSet
	targets         map[string]Target
	deliveryTimeout time.Duration
	metrics         *Metrics
	logger          *slog.Logger

	inflight sync.WaitGroup
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDeliveryTimeout bounds each delivery. Zero means unbounded.
func WithDeliveryTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.deliveryTimeout = d }
}

func WithMetrics(m *Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter binds rules to targets. Every target a rule names must be
// registered; the check runs once here rather than on each event.
func NewRouter(rules *RuleSet, targets map[string]Target, opts ...RouterOption) (*Router, error) {
	if rules == nil {
		return nil, fmt.Errorf("router requires a rule set")
	}
	var missing []string
	for _, id := range rules.Targets() {
		if targets[id] == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %v", ErrUnknownTarget, missing)
	}

	registered := make(map[string]Target, len(targets))
	for id, t := range targets {
		registered[id] = t
	}
	r := &Router{
		rules:           rules,
		targets:         registered,
		deliveryTimeout: 10 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dispatch starts one delivery per matching binding and returns the number
// started without waiting for them.
func (r *Router) Dispatch(ctx context.Context, event DomainEvent) int {
	return r.dispatch(ctx, event, nil)
}

// Deliver is Dispatch followed by waiting for exactly those deliveries.
// The Kafka consumer uses it so offsets are committed after targets ran.
func (r *Router) Deliver(ctx context.Context, event DomainEvent) int {
	var done sync.WaitGroup
	n := r.dispatch(ctx, event, &done)
	done.Wait()
	return n
}

func (r *Router) dispatch(ctx context.Context, event DomainEvent, done *sync.WaitGroup) int {
	bindings := r.rules.Match(event.Source, event.DetailType)
	if len(bindings) == 0 {
		r.metrics.incUnmatched()
		r.logger.DebugContext(ctx, "event matched no rule",
			"event_id", event.ID,
			"source", event.Source,
			"detail_type", event.DetailType,
		)
		return 0
	}

	base := context.WithoutCancel(ctx)
	for _, b := range bindings {
		r.inflight.Add(1)
		if done != nil {
			done.Add(1)
		}
		go func(b Binding) {
			defer r.inflight.Done()
			if done != nil {
				defer done.Done()
			}
			r.deliver(base, b, event)
		}(b)
	}
	return len(bindings)
}

func (r *Router) deliver(ctx context.Context, b Binding, event DomainEvent) {
	if r.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deliveryTimeout)
		defer cancel()
	}

	start := time.Now()
	outcome := outcomeDelivered
	defer func() {
		if rec := recover(); rec != nil {
			outcome = outcomePanicked
			r.logger.ErrorContext(ctx, "target panicked",
				"rule", b.Rule,
				"target", b.Target,
				"event_id", event.ID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		r.metrics.observeDelivery(b.Target, outcome, time.Since(start).Seconds())
	}()

	r.targets[b.Target].Consume(ctx, event)
}

// Wait blocks until every in-flight delivery finished or ctx is done.
func (r *Router) Wait(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for deliveries: %w", ctx.Err())
	}
}
