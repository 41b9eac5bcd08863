package deliverability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for email deliverability verification.
type Metrics struct {
	Requests       prometheus.Counter
	StatusChecks   *prometheus.CounterVec
	WebhookEvents  *prometheus.CounterVec
	ProviderErrors prometheus.Counter
}

// New creates a new Metrics instance with all deliverability metrics registered.
func New() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "corecompliance_email_verification_requests_total",
			Help: "Total email verification requests accepted",
		}),
		StatusChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corecompliance_email_status_checks_total",
			Help: "Total poller invocations by outcome",
		}, []string{"outcome"}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corecompliance_webhook_events_total",
			Help: "Total provider webhook events by result",
		}, []string{"result"}),
		ProviderErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "corecompliance_mail_provider_errors_total",
			Help: "Total failed calls to the outbound-mail provider",
		}),
	}
}

func (m *Metrics) IncrementRequests() {
	if m != nil {
		m.Requests.Inc()
	}
}

func (m *Metrics) IncrementStatusCheck(outcome string) {
	if m != nil {
		m.StatusChecks.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementWebhookEvent(result string) {
	if m != nil {
		m.WebhookEvents.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementProviderErrors() {
	if m != nil {
		m.ProviderErrors.Inc()
	}
}
