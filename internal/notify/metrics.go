package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for notifications.
type Metrics struct {
	Sent    prometheus.Counter
	Dropped *prometheus.CounterVec
}

// NewMetrics creates and registers notification metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Sent: factory.NewCounter(prometheus.CounterOpts{
			Name: "eda_notifications_sent_total",
			Help: "Notifications accepted by the channel",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eda_notifications_dropped_total",
			Help: "Events that produced no notification, by stage",
		}, []string{"stage"}),
	}
}

func (m *Metrics) incSent() {
	if m != nil {
		m.Sent.Inc()
	}
}

func (m *Metrics) incDropped(stage string) {
	if m != nil {
		m.Dropped.WithLabelValues(stage).Inc()
	}
}
