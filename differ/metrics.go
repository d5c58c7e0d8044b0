package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the differ's Prometheus collectors.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	changes      *prometheus.CounterVec
}

// NewMetrics creates and registers the differ metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Duration of snapshot diffs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "differ",
			Name:      "changes_total",
			Help:      "Token and pool changes found between snapshots.",
		}, []string{"kind", "op"}),
	}
	reg.MustRegister(m.diffDuration, m.changes)
	return m
}
