package obs

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/kasir-desk/internal/events"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts submission outcomes by transaction kind.
	CheckoutTotal *prometheus.CounterVec
	// CheckoutLatency records remote submission latency in milliseconds.
	CheckoutLatency *prometheus.HistogramVec
	// SearchTotal counts product search outcomes.
	SearchTotal *prometheus.CounterVec
	// SaleNotificationTotal counts sale notification task outcomes.
	SaleNotificationTotal *prometheus.CounterVec
	// SessionEventsTotal counts emitted session events by topic.
	SessionEventsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout submissions by outcome.",
		}, []string{"kind", "result"}))
		CheckoutLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_ms",
			Help:      "Latency of remote checkout submissions in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"kind"}))
		SearchTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "product_search_total",
			Help:      "Count of product searches by outcome.",
		}, []string{"result"}))
		SaleNotificationTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_notification_total",
			Help:      "Count of sale notification deliveries by outcome.",
		}, []string{"result"}))
		SessionEventsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Count of emitted session events by topic.",
		}, []string{"topic"}))
	})
}

// ObserveCheckout records a checkout outcome. It is a no-op until the domain
// metrics are registered.
func ObserveCheckout(kind, result string, took time.Duration) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(kind, result).Inc()
	}
	if CheckoutLatency != nil && took > 0 {
		CheckoutLatency.WithLabelValues(kind).Observe(DurationMillis(took))
	}
}

// ObserveSearch records a product search outcome.
func ObserveSearch(result string) {
	if SearchTotal != nil {
		SearchTotal.WithLabelValues(result).Inc()
	}
}

// ObserveSaleNotification records a sale notification outcome.
func ObserveSaleNotification(result string) {
	if SaleNotificationTotal != nil {
		SaleNotificationTotal.WithLabelValues(result).Inc()
	}
}

// EventCounter is a bus notifier counting events per topic.
type EventCounter struct{}

// Notify implements events.Notifier.
func (EventCounter) Notify(_ context.Context, ev events.Event) error {
	if SessionEventsTotal != nil {
		SessionEventsTotal.WithLabelValues(ev.Topic).Inc()
	}
	return nil
}
