package breaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bedtime_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
		[]string{"breaker"},
	)
	breakerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedtime_circuit_breaker_events_total",
			Help: "Circuit breaker events by type (success, failure, timeout, reject, fallback, open, close, halfOpen).",
		},
		[]string{"breaker", "event"},
	)
	breakerInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bedtime_circuit_breaker_in_flight",
			Help: "Guarded calls currently in flight.",
		},
		[]string{"breaker"},
	)
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func transitionEvent(to gobreaker.State) EventType {
	switch to {
	case gobreaker.StateOpen:
		return EventOpen
	case gobreaker.StateHalfOpen:
		return EventHalfOpen
	default:
		return EventClose
	}
}
