package scheduler

import (
	"sync"
	"time"
)

// CircuitState is the admission-control state of the dispatcher.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitHalfOpen
	CircuitOpen
)

// CircuitBreaker throttles submission admission when the queue is
// saturated, adapted from the source control plane's scheduler circuit
// breaker: once the queue backs up past queueThreshold it trips open,
// waits cooldown, then lets a handful of probe submissions through before
// fully closing again.
type CircuitBreaker struct {
	mu sync.Mutex

	queueThreshold int
	cooldown       time.Duration
	testLimit      int

	state       CircuitState
	openedAt    time.Time
	testsPassed int
}

// NewCircuitBreaker returns a breaker that opens once the queue holds more
// than queueThreshold operations.
func NewCircuitBreaker(queueThreshold int) *CircuitBreaker {
	return &CircuitBreaker{
		queueThreshold: queueThreshold,
		cooldown:       30 * time.Second,
		testLimit:      5,
	}
}

// ShouldAdmit reports whether a new submission may be accepted, given the
// queue's current depth.
func (b *CircuitBreaker) ShouldAdmit(queueLen int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.state = CircuitHalfOpen
		b.testsPassed = 0
		return true
	case CircuitHalfOpen:
		return b.testsPassed < b.testLimit
	default:
		if queueLen > b.queueThreshold {
			b.state = CircuitOpen
			b.openedAt = time.Now()
			return false
		}
		return true
	}
}

// RecordSuccess reports a dispatch that completed normally.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.testsPassed++
		if b.testsPassed >= b.testLimit {
			b.state = CircuitClosed
		}
	}
}

// RecordFailure reports a dispatch that failed, re-opening the breaker
// immediately if it was probing in half-open state.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		b.openedAt = time.Now()
	}
}

// GetState returns the breaker's current state.
func (b *CircuitBreaker) GetState() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
