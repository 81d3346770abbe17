// Package metrics exposes request lifecycle counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions  *prometheus.CounterVec
	CASConflicts prometheus.Counter
	Expired      prometheus.Counter
}

// New creates and registers the lifecycle metrics.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lifelink_request_transitions_total",
			Help: "Request state transitions by target status",
		}, []string{"status"}),
		CASConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifelink_request_cas_conflicts_total",
			Help: "Optimistic concurrency conflicts on request updates",
		}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifelink_request_expired_total",
			Help: "Requests flipped to expired by the sweeper",
		}),
	}
}

func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.CASConflicts.Inc()
}

func (m *Metrics) ObserveExpired(n int) {
	if m == nil {
		return
	}
	m.Expired.Add(float64(n))
}
