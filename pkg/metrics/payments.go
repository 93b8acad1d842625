package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records provider call outcomes, webhook deliveries and
// wallet fund releases.
type PaymentMetrics struct {
	providerDuration *prometheus.HistogramVec
	providerCalls    *prometheus.CounterVec
	webhooks         *prometheus.CounterVec
	fundReleases     *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_call_duration_seconds",
		Help:    "Duration of mobile money provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	providerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_calls_total",
		Help: "Mobile money provider calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_total",
		Help: "Webhook deliveries by kind and outcome.",
	}, []string{"kind", "outcome"})
	fundReleases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fund_releases_total",
		Help: "Wallet fund releases by owner type.",
	}, []string{"owner_type"})
	reg.MustRegister(providerDuration, providerCalls, webhooks, fundReleases)
	return &PaymentMetrics{
		providerDuration: providerDuration,
		providerCalls:    providerCalls,
		webhooks:         webhooks,
		fundReleases:     fundReleases,
	}
}

// ObserveProviderCall records the duration and outcome of a provider call.
func (p *PaymentMetrics) ObserveProviderCall(operation, outcome string, duration time.Duration) {
	if p == nil || p.providerDuration == nil {
		return
	}
	p.providerDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
	p.providerCalls.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncWebhook increments the webhook counter for the given kind and outcome.
func (p *PaymentMetrics) IncWebhook(kind, outcome string) {
	if p == nil || p.webhooks == nil {
		return
	}
	p.webhooks.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// IncFundRelease increments the fund release counter for the owner type.
func (p *PaymentMetrics) IncFundRelease(ownerType string) {
	if p == nil || p.fundReleases == nil {
		return
	}
	p.fundReleases.WithLabelValues(normalizeLabel(ownerType)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
