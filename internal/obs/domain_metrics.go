package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SessionsOpenedTotal counts register sessions created.
	SessionsOpenedTotal prometheus.Counter
	// ItemsScannedTotal counts successful item scans across all sessions.
	ItemsScannedTotal prometheus.Counter
	// SalesCompletedTotal counts settled transactions.
	SalesCompletedTotal prometheus.Counter
	// SettlementFailuresTotal counts rejected completion attempts by reason.
	SettlementFailuresTotal *prometheus.CounterVec
	// SaleAmount records settled grand totals in currency units.
	SaleAmount prometheus.Histogram
	// ExpensesRecordedTotal counts manual expense entries.
	ExpensesRecordedTotal prometheus.Counter
	// WebhookDeliveriesTotal tracks webhook dispatch outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// WebhookAttemptLatency records delivery attempt latency in milliseconds.
	WebhookAttemptLatency *prometheus.HistogramVec
	// WebhookDispatchAttempts counts dispatcher attempts regardless of outcome.
	WebhookDispatchAttempts prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SessionsOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Count of register sessions created.",
		})
		ItemsScannedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_scanned_total",
			Help:      "Count of items added to carts by scan.",
		})
		SalesCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_completed_total",
			Help:      "Count of settled transactions.",
		})
		SettlementFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_failures_total",
			Help:      "Count of rejected completion attempts by reason.",
		}, []string{"reason"})
		SaleAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_amount",
			Help:      "Settled grand totals in currency units.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		})
		ExpensesRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expenses_recorded_total",
			Help:      "Count of manual expense entries.",
		})
		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook delivery outcomes.",
		}, []string{"result"})
		WebhookAttemptLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_ms",
			Help:      "Latency for webhook delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		WebhookDispatchAttempts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_attempts_total",
			Help:      "Webhook dispatch attempts regardless of outcome.",
		})

		reg.MustRegister(
			SessionsOpenedTotal,
			ItemsScannedTotal,
			SalesCompletedTotal,
			SettlementFailuresTotal,
			SaleAmount,
			ExpensesRecordedTotal,
			WebhookDeliveriesTotal,
			WebhookAttemptLatency,
			WebhookDispatchAttempts,
		)
	})
}
