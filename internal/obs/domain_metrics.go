package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts browser callback routing decisions.
	PaymentCallbackTotal *prometheus.CounterVec
	// PaymentReconcileTotal counts reconciliation waiter terminal outcomes.
	PaymentReconcileTotal *prometheus.CounterVec
	// OrderMaterializeTotal tracks order materialisation attempts by result.
	OrderMaterializeTotal *prometheus.CounterVec
	// CheckoutIntentTotal counts hosted-checkout intent creation outcomes.
	CheckoutIntentTotal *prometheus.CounterVec
	// ReconcileWaitSeconds records how long waiters observe before a terminal state.
	ReconcileWaitSeconds prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"})
		PaymentCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of browser callback redirects by routing decision.",
		}, []string{"provider", "decision"})
		PaymentReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconcile_total",
			Help:      "Count of reconciliation waiter terminal outcomes.",
		}, []string{"outcome"})
		OrderMaterializeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_materialize_total",
			Help:      "Count of order materialisation attempts by result.",
		}, []string{"trigger", "result"})
		CheckoutIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_intent_total",
			Help:      "Count of hosted-checkout intent creation outcomes.",
		}, []string{"result"})
		ReconcileWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_reconcile_wait_seconds",
			Help:      "Observed waiter duration until a terminal outcome.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60},
		})

		mustRegisterCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentCallbackTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentCallbackTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentReconcileTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentReconcileTotal = v
			}
		})
		mustRegisterCollector(reg, OrderMaterializeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderMaterializeTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutIntentTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutIntentTotal = v
			}
		})
		mustRegisterCollector(reg, ReconcileWaitSeconds, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ReconcileWaitSeconds = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
