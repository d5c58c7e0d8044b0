package api

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the query surface's Prometheus collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers the API metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Query surface requests by method and outcome.",
		}, []string{"method", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "router",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of query surface requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"method"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}
