package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ingestion-side Prometheus metrics.
type Metrics struct {
	UsersCreated    prometheus.Counter
	StoreFailures   prometheus.Counter
	PublishFailures prometheus.Counter
	RequestLatency  *prometheus.HistogramVec
}

// New creates and registers all ingestion metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "eda_users_created_total",
			Help: "Total number of users stored and announced",
		}),
		StoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "eda_user_store_failures_total",
			Help: "Total number of failed user record writes",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "eda_user_publish_failures_total",
			Help: "Total number of user_created events that could not be published after the record was stored",
		}),
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eda_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// IncrementUsersCreated increments the users created counter by 1.
func (m *Metrics) IncrementUsersCreated() {
	m.UsersCreated.Inc()
}

// IncrementStoreFailures increments the store failure counter by 1.
func (m *Metrics) IncrementStoreFailures() {
	m.StoreFailures.Inc()
}

// IncrementPublishFailures increments the publish failure counter by 1.
func (m *Metrics) IncrementPublishFailures() {
	m.PublishFailures.Inc()
}

// ObserveRequest records one request's latency.
func (m *Metrics) ObserveRequest(route, method, status string, seconds float64) {
	m.RequestLatency.WithLabelValues(route, method, status).Observe(seconds)
}
