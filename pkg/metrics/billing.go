package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics records wallet debits and rejections.
type BillingMetrics struct {
	charges      *prometheus.CounterVec
	chargedTotal *prometheus.CounterVec
	declined     *prometheus.CounterVec
}

// NewBillingMetrics registers billing metrics on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	charges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charges",
		Help: "Usage charges debited from accounts.",
	}, []string{"service"})
	chargedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_charged_credits_total",
		Help: "Total credits debited, by service.",
	}, []string{"service"})
	declined := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_declined",
		Help: "Charges rejected for insufficient balance.",
	}, []string{"service"})
	reg.MustRegister(charges, chargedTotal, declined)
	return &BillingMetrics{
		charges:      charges,
		chargedTotal: chargedTotal,
		declined:     declined,
	}
}

// ObserveCharge records a successful debit of amount credits.
func (b *BillingMetrics) ObserveCharge(service string, amount float64) {
	if b == nil || b.charges == nil {
		return
	}
	label := normalizeLabel(service)
	b.charges.WithLabelValues(label).Inc()
	b.chargedTotal.WithLabelValues(label).Add(amount)
}

// IncDeclined counts one insufficient-balance rejection.
func (b *BillingMetrics) IncDeclined(service string) {
	if b == nil || b.declined == nil {
		return
	}
	b.declined.WithLabelValues(normalizeLabel(service)).Inc()
}
