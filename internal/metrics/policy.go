package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PolicyCircuitState is 1 for the current breaker state of a policy endpoint.
	PolicyCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "robohub_policy_circuit_state",
		Help: "Circuit breaker state per policy endpoint (1 = current state)",
	}, []string{"endpoint", "state"})

	PolicyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robohub_policy_requests_total",
		Help: "Requests sent to the policy worker by operation and result",
	}, []string{"op", "result"})
)

var circuitStates = []string{"closed", "open", "half-open"}

// SetPolicyCircuitState marks state as current for endpoint.
func SetPolicyCircuitState(endpoint, state string) {
	for _, s := range circuitStates {
		v := 0.0
		if s == state {
			v = 1
		}
		PolicyCircuitState.WithLabelValues(endpoint, s).Set(v)
	}
}

func RecordPolicyRequest(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PolicyRequestsTotal.WithLabelValues(op, result).Inc()
}
