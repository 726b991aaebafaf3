package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker collectors are labelled by the external dependency.
var (
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_breaker_state",
		Help: "Current breaker state: 0=closed, 1=open, 2=half-open.",
	}, []string{"target"})
	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_breaker_transition_total",
		Help: "Breaker state transitions.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_breaker_open_total",
		Help: "Times a breaker opened.",
	}, []string{"target"})
)

func setStateGauge(target string, s State) {
	BreakerState.WithLabelValues(target).Set(float64(s))
}

func recordTransition(target string, from, to State) {
	setStateGauge(target, to)
	BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	if to == Open {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}
}
