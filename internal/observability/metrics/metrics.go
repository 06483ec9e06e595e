package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for webhook ingestion and
// outbound call handling.
type PipelineMetrics struct {
	inboundTotal    *prometheus.CounterVec
	smsSentTotal    *prometheus.CounterVec
	callResultTotal *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "ingest",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound webhook deliveries by outcome",
		}, []string{"outcome"}),
		smsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "sms",
			Name:      "sent_total",
			Help:      "Total SMS dispatch attempts",
		}, []string{"status"}),
		callResultTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "outbound",
			Name:      "call_result_total",
			Help:      "Total terminal call results by canonical outcome",
		}, []string{"result"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadline",
			Subsystem: "ingest",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.smsSentTotal, m.callResultTotal, m.webhookLatency)
	return m
}

func (m *PipelineMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) ObserveSMS(status string) {
	if m == nil {
		return
	}
	m.smsSentTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveCallResult(result string) {
	if m == nil {
		return
	}
	m.callResultTotal.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) ObserveWebhookLatency(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(endpoint).Observe(seconds)
}
