package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker collectors, labelled by the guarded dependency.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kasir",
		Name:      "breaker_state",
		Help:      "Breaker state per dependency (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kasir",
		Name:      "breaker_transition_total",
		Help:      "Breaker state changes per dependency.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kasir",
		Name:      "breaker_open_total",
		Help:      "Times a breaker opened per dependency.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
