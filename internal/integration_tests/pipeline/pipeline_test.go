package pipeline

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eda/internal/eventbus"
	"eda/internal/notify"
	"eda/internal/platform/metrics"
	httptransport "eda/internal/transport/http"
	userhandler "eda/internal/users/handler"
	"eda/internal/users/models"
	"eda/internal/users/service"
	"eda/internal/users/store"
	"eda/pkg/testutil"
)

// outbox is a notify.Sender that records what would leave the system.
type outbox struct {
	mu   sync.Mutex
	sent []notify.NotificationRequest
}

func (o *outbox) Send(_ context.Context, req notify.NotificationRequest) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, req)
	return nil
}

func (o *outbox) messages() []notify.NotificationRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notify.NotificationRequest(nil), o.sent...)
}

type pipeline struct {
	handler http.Handler
	store   *store.InMemoryStore
	bus     *eventbus.LocalBus
	outbox  *outbox
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	box := &outbox{}
	dispatcher := notify.NewDispatcher(box, "notify-new-user", notify.WithLogger(logger))
	rules, err := eventbus.NewRuleSet(eventbus.Rule{
		Name:    "user-created",
		Pattern: eventbus.Pattern{Source: models.EventSource, DetailType: models.DetailTypeUserCreated},
		Targets: []string{notify.TargetID},
	})
	require.NoError(t, err)
	router, err := eventbus.NewRouter(rules, map[string]eventbus.Target{notify.TargetID: dispatcher},
		eventbus.WithLogger(logger))
	require.NoError(t, err)
	bus := eventbus.NewLocalBus("eda-lecture-event-bus", router, eventbus.NewMetrics(reg))

	st := store.NewInMemoryStore()
	svc, err := service.New(st, bus, "eda-lecture-event-bus", service.WithLogger(logger))
	require.NoError(t, err)

	handler := httptransport.NewRouter(httptransport.Config{
		Logger:         logger,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		RequestTimeout: 5 * time.Second,
		Checks:         map[string]httptransport.HealthChecker{"store": st, "bus": bus},
		Routes:         []httptransport.Routes{userhandler.New(svc, logger)},
	})
	return &pipeline{handler: handler, store: st, bus: bus, outbox: box}
}

func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.bus.Close(ctx))
}

func TestNewUserIsStoredAnnouncedAndNotified(t *testing.T) {
	p := newPipeline(t)

	testutil.Given(t, "a valid new user", func(t *testing.T) {
		body := map[string]string{"username": "alice", "email": "alice@example.com"}

		testutil.When(t, "the client posts it", func(t *testing.T) {
			rr := testutil.DoRequest(p.handler, testutil.NewJSONRequest(t, http.MethodPost, "/new-user", body))
			p.drain(t)

			testutil.Then(t, "the response is 200 with no body", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				assert.Empty(t, rr.Body.String())
			})

			testutil.Then(t, "the record is stored under email and username", func(t *testing.T) {
				rec, err := p.store.Get(context.Background(), "alice@example.com", "alice")
				require.NoError(t, err)
				assert.WithinDuration(t, time.Now(), rec.CreatedAt, time.Minute)
			})

			testutil.Then(t, "exactly one notification names the email", func(t *testing.T) {
				assert.Equal(t, []notify.NotificationRequest{{
					ChannelRef: "notify-new-user",
					Subject:    "User Created",
					Message:    "User successfully created with email: alice@example.com",
				}}, p.outbox.messages())
			})
		})
	})
}

func TestRejectedUserLeavesNoTrace(t *testing.T) {
	p := newPipeline(t)

	testutil.Given(t, "a request without an email", func(t *testing.T) {
		rr := testutil.DoRequest(p.handler, testutil.NewRequestWithBody(t, http.MethodPost, "/new-user", `{"username":"bob"}`))
		p.drain(t)

		testutil.Then(t, "the client gets 400 and nothing downstream happens", func(t *testing.T) {
			testutil.AssertResult(t, rr, http.StatusBadRequest, "email is required")
			assert.Zero(t, p.store.Len())
			assert.Empty(t, p.outbox.messages())
		})
	})
}

func TestReplayedRequestNotifiesTwice(t *testing.T) {
	p := newPipeline(t)
	body := `{"username":"alice","email":"alice@example.com"}`

	for i := 0; i < 2; i++ {
		rr := testutil.DoRequest(p.handler, testutil.NewRequestWithBody(t, http.MethodPost, "/new-user", body))
		testutil.AssertStatus(t, rr, http.StatusOK)
	}
	p.drain(t)

	assert.Equal(t, 1, p.store.Len(), "same key overwrites")
	assert.Len(t, p.outbox.messages(), 2, "no deduplication")
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	p := newPipeline(t)
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			body := `{"username":"` + u + `","email":"` + u + `@example.com"}`
			rr := testutil.DoRequest(p.handler, testutil.NewRequestWithBody(t, http.MethodPost, "/new-user", body))
			assert.Equal(t, http.StatusOK, rr.Code)
		}(u)
	}
	wg.Wait()
	p.drain(t)

	assert.Equal(t, len(users), p.store.Len())
	assert.Len(t, p.outbox.messages(), len(users))
}

func TestHealthAfterClose(t *testing.T) {
	p := newPipeline(t)
	p.drain(t)

	rr := testutil.DoRequest(p.handler, testutil.NewJSONRequest(t, http.MethodGet, "/health", nil))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	assert.True(t, bytes.Contains(rr.Body.Bytes(), []byte(`"bus":"closed"`)))

	rr = testutil.DoRequest(p.handler, testutil.NewRequestWithBody(t, http.MethodPost, "/new-user", `{"username":"late","email":"late@example.com"}`))
	testutil.AssertResult(t, rr, http.StatusInternalServerError, "failed to send event: ")
}
