package billing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for checkout and webhook processing.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	WebhookEventsTotal    *prometheus.CounterVec
	CheckoutSessionsTotal *prometheus.CounterVec
}

// NewMetrics creates the billing collectors and registers them with reg.
// Passing a nil registerer skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Authenticated webhook deliveries by normalized event, outcome and abandon reason",
			},
			[]string{"provider", "event", "outcome", "reason"},
		),
		CheckoutSessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_checkout_sessions_total",
				Help: "Checkout session requests by result",
			},
			[]string{"provider", "result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.WebhookEventsTotal, m.CheckoutSessionsTotal)
	}

	return m
}

func (m *Metrics) observeWebhook(provider string, event EventType, res *Result) {
	if m == nil || res == nil {
		return
	}
	label := string(event)
	if event != EventPaymentSucceeded && event != EventSubscriptionCancelled {
		label = "unhandled"
	}
	m.WebhookEventsTotal.WithLabelValues(provider, label, string(res.Outcome), string(res.Reason)).Inc()
}

func (m *Metrics) observeCheckout(provider, result string) {
	if m == nil {
		return
	}
	m.CheckoutSessionsTotal.WithLabelValues(provider, result).Inc()
}
