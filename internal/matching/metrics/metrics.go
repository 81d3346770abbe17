// Package metrics provides observability for candidate selection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks selector behavior per requested blood type.
type Metrics struct {
	CandidatesSelected *prometheus.HistogramVec
	SelectLatency      prometheus.Histogram
}

// New creates and registers the selector metrics.
func New() *Metrics {
	return &Metrics{
		CandidatesSelected: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifelink_matching_candidates_selected",
			Help:    "Number of candidates returned per selection by requested blood type",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		}, []string{"blood_type"}),

		SelectLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifelink_matching_select_duration_seconds",
			Help:    "Duration of candidate selection including the donor pool query",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
	}
}

// ObserveSelection records one completed selection.
func (m *Metrics) ObserveSelection(bloodType string, count int, d time.Duration) {
	if m == nil {
		return
	}
	m.CandidatesSelected.WithLabelValues(bloodType).Observe(float64(count))
	m.SelectLatency.Observe(d.Seconds())
}
