package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold      int
	SuccessThreshold      int
	Timeout               time.Duration
	MaxConcurrentRequests int
}

// DefaultCircuitBreakerConfig opens after 5 consecutive task failures
// and stays open for a fixed 60s before allowing a half-open trial.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:      5,
		SuccessThreshold:      2,
		Timeout:               60 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// CircuitBreaker guards the autonomous loop's task-fetch/run cycle
// against a backend that is down or degraded: after FailureThreshold
// consecutive task failures it opens and rejects immediately until
// Timeout elapses, then allows a trial batch through in half-open state.
type CircuitBreaker struct {
	mu sync.RWMutex

	config CircuitBreakerConfig
	state  CircuitState

	consecutiveFailures  int
	consecutiveSuccesses int
	totalFailures        int
	totalSuccesses       int

	lastFailureTime time.Time
	lastStateChange time.Time
	openedAt        time.Time

	halfOpenRequests int
}

// NewCircuitBreaker creates a closed CircuitBreaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config:          config,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn under circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenRequests = 1
			return nil
		}
		return &CircuitBreakerOpenError{OpenedAt: cb.openedAt, Timeout: cb.config.Timeout}

	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxConcurrentRequests {
			return &CircuitBreakerOpenError{OpenedAt: cb.openedAt, Timeout: cb.config.Timeout}
		}
		cb.halfOpenRequests++
		return nil

	default:
		return errors.New("unknown circuit breaker state")
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.halfOpenRequests--
	}

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.consecutiveFailures++
	cb.consecutiveSuccesses = 0
	cb.totalFailures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
			cb.openedAt = time.Now()
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.openedAt = time.Now()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.consecutiveSuccesses++
	cb.consecutiveFailures = 0
	cb.totalSuccesses++

	if cb.state == StateHalfOpen && cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) setState(newState CircuitState) {
	if cb.state != newState {
		cb.state = newState
		cb.lastStateChange = time.Now()
		if newState == StateClosed {
			cb.consecutiveFailures = 0
			cb.consecutiveSuccesses = 0
		}
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats returns a snapshot suitable for the /status REST endpoint.
func (cb *CircuitBreaker) Stats() map[string]any {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	stats := map[string]any{
		"state":                 cb.state.String(),
		"consecutive_failures":  cb.consecutiveFailures,
		"consecutive_successes": cb.consecutiveSuccesses,
		"total_failures":        cb.totalFailures,
		"total_successes":       cb.totalSuccesses,
		"last_state_change":     cb.lastStateChange.Format(time.RFC3339),
	}
	if cb.state == StateOpen {
		stats["opened_at"] = cb.openedAt.Format(time.RFC3339)
		stats["time_until_half_open"] = cb.config.Timeout - time.Since(cb.openedAt)
	}
	return stats
}

// Reset forces the circuit back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenRequests = 0
	cb.lastStateChange = time.Now()
}

// CircuitBreakerOpenError is returned when the breaker rejects a request.
type CircuitBreakerOpenError struct {
	OpenedAt time.Time
	Timeout  time.Duration
}

func (e *CircuitBreakerOpenError) Error() string {
	remaining := e.Timeout - time.Since(e.OpenedAt)
	return fmt.Sprintf("circuit breaker is open, retry in %v", remaining)
}
