// Package metrics records service metrics behind a small interface so that
// components can be built without a Prometheus registry in tests.
package metrics

import (
	"time"
)

// Collector records HTTP, AI delegate and job metrics.
type Collector interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	RecordAIRequest(operation string, outcome Outcome, duration time.Duration)
	RecordCircuitState(operation string, state CircuitState)
	RecordJob(jobType, status string)
}

// Outcome classifies the result of a remote AI call.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeError       Outcome = "error"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeCircuitOpen Outcome = "circuit_open"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the service has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

func (NoOpCollector) RecordHTTPRequest(string, string, int, time.Duration) {}
func (NoOpCollector) RecordAIRequest(string, Outcome, time.Duration)      {}
func (NoOpCollector) RecordCircuitState(string, CircuitState)             {}
func (NoOpCollector) RecordJob(string, string)                            {}

var _ Collector = NoOpCollector{}
