package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the checkout and webhook flows.
type BookingMetrics struct {
	checkoutTotal  *prometheus.CounterVec
	webhookTotal   *prometheus.CounterVec
	webhookLatency prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		checkoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teleconsulta",
			Subsystem: "booking",
			Name:      "checkout_total",
			Help:      "Total checkout initiation attempts",
		}, []string{"status"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teleconsulta",
			Subsystem: "booking",
			Name:      "webhook_total",
			Help:      "Total inbound payment webhooks by outcome",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "teleconsulta",
			Subsystem: "booking",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of payment webhook processing",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.checkoutTotal, m.webhookTotal, m.webhookLatency)
	return m
}

func (m *BookingMetrics) ObserveCheckout(status string) {
	if m == nil {
		return
	}
	m.checkoutTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveWebhook(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(outcome).Inc()
	m.webhookLatency.Observe(seconds)
}
