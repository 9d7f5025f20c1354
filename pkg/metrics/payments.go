package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts reconciliation outcomes, payout transitions and webhook deliveries.
type PaymentMetrics struct {
	reconciles *prometheus.CounterVec
	payouts    *prometheus.CounterVec
	webhooks   *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconciles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_total",
		Help:      "Order reconciliation attempts by requested outcome and result.",
	}, []string{"outcome", "result"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payouts_total",
		Help:      "Payout status transitions.",
	}, []string{"status"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Provider webhook deliveries by event type and result.",
	}, []string{"type", "result"})
	reg.MustRegister(reconciles, payouts, webhooks)
	return &PaymentMetrics{
		reconciles: reconciles,
		payouts:    payouts,
		webhooks:   webhooks,
	}
}

// ObserveReconcile records a reconciliation for outcome with result
// (applied, already_reconciled, unknown_session, conflict, error).
func (m *PaymentMetrics) ObserveReconcile(outcome, result string) {
	if m == nil || m.reconciles == nil {
		return
	}
	m.reconciles.WithLabelValues(normalizeLabel(outcome), normalizeLabel(result)).Inc()
}

// ObservePayout records a payout entering status.
func (m *PaymentMetrics) ObservePayout(status string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(status)).Inc()
}

// ObserveWebhook records a webhook delivery.
func (m *PaymentMetrics) ObserveWebhook(eventType, result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
