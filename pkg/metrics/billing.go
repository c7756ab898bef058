package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "tryon"

// BillingMetrics counts outcomes of the credit, quota and webhook paths. A nil
// *BillingMetrics is valid and records nothing.
type BillingMetrics struct {
	ledger    *prometheus.CounterVec
	rateLimit *prometheus.CounterVec
	webhooks  *prometheus.CounterVec
	dispatch  *prometheus.CounterVec
	overage   *prometheus.CounterVec
	drift     *prometheus.CounterVec
}

func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	m := &BillingMetrics{
		ledger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Quota gate decisions by outcome.",
		}, []string{"outcome", "window"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_webhook_events_total",
			Help:      "Billing webhook deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_submissions_total",
			Help:      "Generation submissions by outcome.",
		}, []string{"outcome"}),
		overage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overage_charges_total",
			Help:      "Overage charges by tier and outcome.",
		}, []string{"tier", "outcome"}),
		drift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_reconcile_mismatches_total",
			Help:      "Accounts whose balance disagrees with their transaction history.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.ledger, m.rateLimit, m.webhooks, m.dispatch, m.overage, m.drift)
	return m
}

func (m *BillingMetrics) LedgerOp(op, outcome string) {
	if m == nil || m.ledger == nil {
		return
	}
	m.ledger.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
}

func (m *BillingMetrics) RateLimitDecision(outcome, window string) {
	if m == nil || m.rateLimit == nil {
		return
	}
	m.rateLimit.WithLabelValues(normalizeLabel(outcome), normalizeLabel(window)).Inc()
}

func (m *BillingMetrics) WebhookEvent(eventType, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *BillingMetrics) Dispatch(outcome string) {
	if m == nil || m.dispatch == nil {
		return
	}
	m.dispatch.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *BillingMetrics) OverageCharge(tier, outcome string) {
	if m == nil || m.overage == nil {
		return
	}
	m.overage.WithLabelValues(normalizeLabel(tier), normalizeLabel(outcome)).Inc()
}

func (m *BillingMetrics) ReconcileMismatch(job string) {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.WithLabelValues(normalizeLabel(job)).Inc()
}
