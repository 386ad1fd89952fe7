// Package core: the provider circuit breaker protects a FunctionRouter from
// hammering a model provider that has started failing, giving it a cooldown
// window before traffic resumes.
package core

import (
	"fmt"
	"sync"
	"time"
)

// CircuitBreakerState is one of the three states a CircuitBreaker can be in.
type CircuitBreakerState int

const (
	CircuitBreakerClosed   CircuitBreakerState = iota // normal operation, calls pass through
	CircuitBreakerOpen                                // tripped, calls are rejected without reaching the provider
	CircuitBreakerHalfOpen                            // cooldown elapsed, a limited number of probe calls are allowed through
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerClosed:
		return "CLOSED"
	case CircuitBreakerOpen:
		return "OPEN"
	case CircuitBreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig tunes when a breaker trips and how it recovers.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `json:"failure_threshold"`    // consecutive failures in Closed before tripping to Open
	SuccessThreshold   int           `json:"success_threshold"`    // consecutive successes in HalfOpen before closing again
	Timeout            time.Duration `json:"timeout"`              // cooldown an Open breaker waits before trying HalfOpen
	MaxConcurrentCalls int           `json:"max_concurrent_calls"` // probe calls allowed concurrently while HalfOpen
}

// DefaultCircuitBreakerConfig returns the breaker settings a provider gets
// when none are configured explicitly.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		FailureThreshold:   5,
		SuccessThreshold:   3,
		Timeout:            30 * time.Second,
		MaxConcurrentCalls: 2,
	}
}

// CircuitBreaker wraps a provider call and trips Open once it has failed
// FailureThreshold times in a row, rejecting further calls until Timeout has
// elapsed and SuccessThreshold probe calls in HalfOpen succeed.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu              sync.RWMutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	concurrentCalls int
	onStateChange   func(from, to CircuitBreakerState)
}

// NewCircuitBreaker builds a breaker starting in the Closed state. A nil
// config falls back to DefaultCircuitBreakerConfig.
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{config: config, state: CircuitBreakerClosed}
}

// SetStateChangeCallback registers a hook invoked whenever the breaker
// transitions between states - useful for surfacing trips in metrics or logs.
func (cb *CircuitBreaker) SetStateChangeCallback(callback func(from, to CircuitBreakerState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = callback
}

// Call runs fn if the breaker currently allows it, recording the outcome
// against the breaker's state afterward. An Open breaker returns its own
// error without ever invoking fn.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if err := cb.admit(); err != nil {
		cb.mu.Unlock()
		return err
	}
	if cb.state == CircuitBreakerHalfOpen {
		cb.concurrentCalls++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailure()
	} else {
		cb.recordSuccess()
	}
	if cb.state == CircuitBreakerHalfOpen {
		cb.concurrentCalls--
	}
	return err
}

// admit decides whether a call may proceed given the current state, lazily
// flipping Open to HalfOpen once the cooldown window has elapsed.
func (cb *CircuitBreaker) admit() error {
	switch cb.state {
	case CircuitBreakerClosed:
		return nil
	case CircuitBreakerOpen:
		if time.Since(cb.lastFailureTime) < cb.config.Timeout {
			return fmt.Errorf("circuit breaker is open")
		}
		cb.transitionTo(CircuitBreakerHalfOpen)
		cb.successCount = 0
		cb.concurrentCalls = 0
		return nil
	case CircuitBreakerHalfOpen:
		if cb.concurrentCalls >= cb.config.MaxConcurrentCalls {
			return fmt.Errorf("circuit breaker is half-open and at max concurrent calls")
		}
		return nil
	default:
		return fmt.Errorf("unknown circuit breaker state")
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case CircuitBreakerClosed:
		cb.failureCount = 0
	case CircuitBreakerHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitBreakerClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitBreakerClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitBreakerOpen)
		}
	case CircuitBreakerHalfOpen:
		// any probe failure sends it straight back to Open
		cb.transitionTo(CircuitBreakerOpen)
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) transitionTo(newState CircuitBreakerState) {
	oldState := cb.state
	cb.state = newState
	if cb.onStateChange != nil && oldState != newState {
		cb.onStateChange(oldState, newState)
	}
}

// GetState returns the breaker's current state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// CircuitBreakerMetrics is a point-in-time snapshot of a breaker's counters,
// suitable for exposing on a diagnostics endpoint.
type CircuitBreakerMetrics struct {
	State           CircuitBreakerState `json:"state"`
	FailureCount    int                 `json:"failure_count"`
	SuccessCount    int                 `json:"success_count"`
	LastFailureTime time.Time           `json:"last_failure_time"`
	ConcurrentCalls int                 `json:"concurrent_calls"`
}

// GetMetrics returns a snapshot of the breaker's current counters.
func (cb *CircuitBreaker) GetMetrics() CircuitBreakerMetrics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitBreakerMetrics{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		ConcurrentCalls: cb.concurrentCalls,
	}
}
