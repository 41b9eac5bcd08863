package freshness

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for document freshness checks.
type Metrics struct {
	Verifications *prometheus.CounterVec
	ParseDuration prometheus.Histogram
}

// New creates a new Metrics instance with all freshness metrics registered.
func New() *Metrics {
	return &Metrics{
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corecompliance_file_verifications_total",
			Help: "Total document freshness verifications by resulting status",
		}, []string{"status"}),
		ParseDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "corecompliance_file_parse_duration_seconds",
			Help:    "Duration of tabular document parsing",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementVerification records one completed verification.
func (m *Metrics) IncrementVerification(status string) {
	if m != nil {
		m.Verifications.WithLabelValues(status).Inc()
	}
}

// ObserveParseDuration records how long parsing took.
func (m *Metrics) ObserveParseDuration(seconds float64) {
	if m != nil {
		m.ParseDuration.Observe(seconds)
	}
}
