package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes recorded per target.
const (
	outcomeDelivered = "delivered"
	outcomePanicked  = "panicked"
)

// Metrics holds Prometheus metrics for publishing and delivery.
type Metrics struct {
	Published        *prometheus.CounterVec
	Unmatched        prometheus.Counter
	Deliveries       *prometheus.CounterVec
	DeliveryDuration *prometheus.HistogramVec
	BreakerRejected  prometheus.Counter
	BreakerState     prometheus.Gauge
}

// NewMetrics creates and registers the bus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eda_bus_events_published_total",
			Help: "Events offered to the bus by outcome",
		}, []string{"bus", "result"}),
		Unmatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "eda_bus_events_unmatched_total",
			Help: "Events that matched no routing rule and were dropped",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eda_bus_deliveries_total",
			Help: "Target invocations by target and outcome",
		}, []string{"target", "outcome"}),
		DeliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eda_bus_delivery_duration_seconds",
			Help:    "Time spent in a target per delivery",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		BreakerRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "eda_bus_circuit_breaker_rejected_total",
			Help: "Publishes rejected while the producer circuit was open",
		}),
		BreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eda_bus_circuit_breaker_state",
			Help: "Producer circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) incPublished(bus string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Published.WithLabelValues(bus, result).Inc()
}

func (m *Metrics) incUnmatched() {
	if m == nil {
		return
	}
	m.Unmatched.Inc()
}

func (m *Metrics) observeDelivery(target, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(target, outcome).Inc()
	m.DeliveryDuration.WithLabelValues(target).Observe(seconds)
}

func (m *Metrics) incBreakerRejected() {
	if m == nil {
		return
	}
	m.BreakerRejected.Inc()
}

func (m *Metrics) setBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
