package eventbus

import (
	"sync"
	"time"
)

// CircuitBreaker stops hammering a broker that keeps refusing produces.
// After threshold consecutive failures it opens for cooldown; the first
// call after the cooldown is let through and its result decides whether
// the circuit closes again.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	failures  int
	open      bool
	openUntil time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall
// back to 5 failures and 30 seconds.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.open {
		return true
	}
	if cb.now().Before(cb.openUntil) {
		return false
	}
	// half-open: one probe, re-armed until it reports back
	cb.openUntil = cb.now().Add(cb.cooldown)
	return true
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() (changed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	changed = cb.open
	cb.failures = 0
	cb.open = false
	return changed
}

// RecordFailure counts a failure and opens the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure() (changed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures < cb.threshold {
		return false
	}
	changed = !cb.open
	cb.open = true
	cb.openUntil = cb.now().Add(cb.cooldown)
	return changed
}

func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}
