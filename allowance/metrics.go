package allowance

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	checks    *prometheus.CounterVec
	submitted prometheus.Counter
	failed    prometheus.Counter
	shared    prometheus.Counter
}

// NewMetrics creates and registers the allowance metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "allowance",
			Name:      "checks_total",
			Help:      "On-chain allowance reads, by result.",
		}, []string{"result"}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "allowance",
			Name:      "approvals_submitted_total",
			Help:      "Approval transactions submitted.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "allowance",
			Name:      "approvals_failed_total",
			Help:      "Approvals rejected, reverted or timed out.",
		}),
		shared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "allowance",
			Name:      "shared_outcomes_total",
			Help:      "Ensure calls answered by another call's in-flight result.",
		}),
	}
	reg.MustRegister(m.checks, m.submitted, m.failed, m.shared)
	return m
}
