package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics shared across the service.
type Metrics struct {
	Verifications       *prometheus.CounterVec
	ComplianceDecisions *prometheus.CounterVec
	Settlements         *prometheus.CounterVec
	VerificationSeconds prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_verifications_total",
			Help: "Identity verification checks by outcome.",
		}, []string{"outcome"}),
		ComplianceDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_compliance_decisions_total",
			Help: "Compliance transfer decisions by reason code.",
		}, []string{"reason"}),
		Settlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_settlements_total",
			Help: "Settlement notifications processed by kind.",
		}, []string{"kind"}),
		VerificationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custos_verification_duration_seconds",
			Help:    "Latency of isVerified evaluations.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveVerification records one verification check.
func (m *Metrics) ObserveVerification(verified bool, seconds float64) {
	outcome := "verified"
	if !verified {
		outcome = "not_verified"
	}
	m.Verifications.WithLabelValues(outcome).Inc()
	m.VerificationSeconds.Observe(seconds)
}
