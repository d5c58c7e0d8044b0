package router

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the router's Prometheus collectors.
type Metrics struct {
	searchDuration *prometheus.HistogramVec
	candidates     *prometheus.CounterVec
	noPath         *prometheus.CounterVec
}

// NewMetrics creates and registers the router metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "router",
			Name:      "search_duration_seconds",
			Help:      "Duration of path searches.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"mode"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "candidates_total",
			Help:      "Completed path candidates evaluated.",
		}, []string{"mode"}),
		noPath: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "no_path_total",
			Help:      "Searches that completed without any candidate.",
		}, []string{"mode"}),
	}
	reg.MustRegister(m.searchDuration, m.candidates, m.noPath)
	return m
}
