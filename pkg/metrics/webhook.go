package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records inbound provider webhook outcomes.
type WebhookMetrics struct {
	received  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	duplicate *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_received",
		Help: "Webhook deliveries received, per provider.",
	}, []string{"provider"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rejected",
		Help: "Webhook deliveries rejected before processing, per provider.",
	}, []string{"provider"})
	duplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_duplicate",
		Help: "Webhook redeliveries acknowledged without reprocessing, per provider.",
	}, []string{"provider"})
	reg.MustRegister(received, rejected, duplicate)
	return &WebhookMetrics{
		received:  received,
		rejected:  rejected,
		duplicate: duplicate,
	}
}

// IncReceived increments the received counter for the named provider.
func (m *WebhookMetrics) IncReceived(provider string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncRejected increments the rejected counter for the named provider.
func (m *WebhookMetrics) IncRejected(provider string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncDuplicate increments the duplicate counter for the named provider.
func (m *WebhookMetrics) IncDuplicate(provider string) {
	if m == nil || m.duplicate == nil {
		return
	}
	m.duplicate.WithLabelValues(normalizeLabel(provider)).Inc()
}
