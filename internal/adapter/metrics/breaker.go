package metrics

import "github.com/failsafe-go/failsafe-go/circuitbreaker"

// CircuitStateValue maps a breaker state onto the gauge encoding used by all
// circuit_breaker_state metrics: 0=closed, 1=half-open, 2=open.
func CircuitStateValue(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}
