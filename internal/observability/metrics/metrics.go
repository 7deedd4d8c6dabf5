package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessagingMetrics exposes counters/histograms for the chat webhook, the
// conversation engine and outbound delivery.
type MessagingMetrics struct {
	inboundTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	outboxTotal     *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labbit",
			Subsystem: "chatbot",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound WhatsApp webhooks by outcome",
		}, []string{"shape", "outcome"}),
		transitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labbit",
			Subsystem: "chatbot",
			Name:      "transitions_total",
			Help:      "Conversation engine transitions",
		}, []string{"from_state", "to_state", "reply_type"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labbit",
			Subsystem: "chatbot",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"type", "status"}),
		outboxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labbit",
			Subsystem: "chatbot",
			Name:      "outbox_effects_total",
			Help:      "Outbox effect delivery attempts by outcome",
		}, []string{"kind", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labbit",
			Subsystem: "chatbot",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.transitionTotal, m.outboundTotal, m.outboxTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(shape, outcome string) {
	if m == nil {
		return
	}
	if shape == "" {
		shape = "none"
	}
	m.inboundTotal.WithLabelValues(shape, outcome).Inc()
}

func (m *MessagingMetrics) ObserveTransition(from, to, replyType string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(from, to, replyType).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(messageType, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(messageType, status).Inc()
}

func (m *MessagingMetrics) ObserveOutbox(kind, outcome string) {
	if m == nil {
		return
	}
	m.outboxTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(outcome).Observe(seconds)
}
