package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a Target that keeps what it received.
type recorder struct {
	mu     sync.Mutex
	events []DomainEvent
	ctxErr []error
	got    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 16)}
}

func (r *recorder) Consume(ctx context.Context, event DomainEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.ctxErr = append(r.ctxErr, ctx.Err())
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) received() []DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DomainEvent(nil), r.events...)
}

func userCreatedEvent() DomainEvent {
	return DomainEvent{
		ID:         "evt-1",
		Source:     "eda_lecture",
		DetailType: "user_created",
		Detail:     json.RawMessage(`{"email":"a@b.com"}`),
	}
}

func mustRules(t *testing.T, rules ...Rule) *RuleSet {
	t.Helper()
	set, err := NewRuleSet(rules...)
	require.NoError(t, err)
	return set
}

func TestNewRouterRejectsUnregisteredTargets(t *testing.T) {
	rules := mustRules(t, userCreatedRule("notify-user", "audit"))

	_, err := NewRouter(rules, map[string]Target{"notify-user": newRecorder()})
	assert.ErrorIs(t, err, ErrUnknownTarget)
	assert.ErrorContains(t, err, "audit")

	_, err = NewRouter(nil, nil)
	assert.Error(t, err)
}

func TestRouterDispatch(t *testing.T) {
	t.Run("every matching target receives the event once", func(t *testing.T) {
		notify, audit := newRecorder(), newRecorder()
		router, err := NewRouter(
			mustRules(t, userCreatedRule("notify-user", "audit")),
			map[string]Target{"notify-user": notify, "audit": audit},
			WithLogger(discardLogger()),
		)
		require.NoError(t, err)

		assert.Equal(t, 2, router.Dispatch(context.Background(), userCreatedEvent()))
		require.NoError(t, router.Wait(context.Background()))

		assert.Len(t, notify.received(), 1)
		assert.Len(t, audit.received(), 1)
		assert.Equal(t, "evt-1", notify.received()[0].ID)
	})

	t.Run("events other than user_created are never delivered", func(t *testing.T) {
		notify := newRecorder()
		reg := prometheus.NewRegistry()
		metrics := NewMetrics(reg)
		router, err := NewRouter(
			mustRules(t, userCreatedRule("notify-user")),
			map[string]Target{"notify-user": notify},
			WithLogger(discardLogger()),
			WithMetrics(metrics),
		)
		require.NoError(t, err)

		for _, event := range []DomainEvent{
			{Source: "eda_lecture", DetailType: "user_deleted", Detail: json.RawMessage(`{}`)},
			{Source: "other", DetailType: "user_created", Detail: json.RawMessage(`{}`)},
		} {
			assert.Zero(t, router.Dispatch(context.Background(), event))
		}
		require.NoError(t, router.Wait(context.Background()))

		assert.Empty(t, notify.received())
		assert.Equal(t, float64(2), promtest.ToFloat64(metrics.Unmatched))
	})

	t.Run("deliveries outlive the publisher's context", func(t *testing.T) {
		notify := newRecorder()
		router, err := NewRouter(
			mustRules(t, userCreatedRule("notify-user")),
			map[string]Target{"notify-user": notify},
			WithLogger(discardLogger()),
		)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		router.Dispatch(ctx, userCreatedEvent())
		cancel()
		require.NoError(t, router.Wait(context.Background()))

		require.Len(t, notify.ctxErr, 1)
		assert.NoError(t, notify.ctxErr[0])
	})
}

func TestRouterIsolatesPanickingTarget(t *testing.T) {
	notify := newRecorder()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	router, err := NewRouter(
		mustRules(t, userCreatedRule("explode", "notify-user")),
		map[string]Target{
			"explode": TargetFunc(func(context.Context, DomainEvent) {
				panic("target exploded")
			}),
			"notify-user": notify,
		},
		WithLogger(discardLogger()),
		WithMetrics(metrics),
	)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		router.Dispatch(context.Background(), userCreatedEvent())
		require.NoError(t, router.Wait(context.Background()))
	})

	assert.Len(t, notify.received(), 1)
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.Deliveries.WithLabelValues("explode", outcomePanicked)))
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.Deliveries.WithLabelValues("notify-user", outcomeDelivered)))
}

func TestRouterDeliveryTimeout(t *testing.T) {
	deadlines := make(chan bool, 1)
	router, err := NewRouter(
		mustRules(t, userCreatedRule("slow")),
		map[string]Target{"slow": TargetFunc(func(ctx context.Context, _ DomainEvent) {
			<-ctx.Done()
			_, ok := ctx.Deadline()
			deadlines <- ok
		})},
		WithLogger(discardLogger()),
		WithDeliveryTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	router.Dispatch(context.Background(), userCreatedEvent())
	require.NoError(t, router.Wait(context.Background()))
	assert.True(t, <-deadlines)
}

func TestRouterDeliverWaitsForTargets(t *testing.T) {
	release := make(chan struct{})
	var finished bool
	router, err := NewRouter(
		mustRules(t, userCreatedRule("gated")),
		map[string]Target{"gated": TargetFunc(func(context.Context, DomainEvent) {
			<-release
			finished = true
		})},
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	assert.Equal(t, 1, router.Deliver(context.Background(), userCreatedEvent()))
	assert.True(t, finished)
}

func TestRouterWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	router, err := NewRouter(
		mustRules(t, userCreatedRule("stuck")),
		map[string]Target{"stuck": TargetFunc(func(context.Context, DomainEvent) { <-release })},
		WithLogger(discardLogger()),
		WithDeliveryTimeout(0),
	)
	require.NoError(t, err)

	router.Dispatch(context.Background(), userCreatedEvent())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, router.Wait(ctx), context.DeadlineExceeded)
}
