// Package resilience provides the generic reliability primitives used
// around flaky dependencies: a circuit breaker and exponential backoff.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected because the breaker
// for that dependency is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState is the breaker's reliability state
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes a circuit breaker
type BreakerConfig struct {
	FailureThreshold         int           // failures within window that trip the breaker
	FailureWindow            time.Duration // rolling window for counting failures
	ResetTimeout             time.Duration // open duration before probing recovery
	HalfOpenSuccessThreshold int           // successes needed to close from half-open
}

// DefaultBreakerConfig returns the standard thresholds
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:         5,
		FailureWindow:            5 * time.Minute,
		ResetTimeout:             60 * time.Second,
		HalfOpenSuccessThreshold: 2,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = d.FailureWindow
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenSuccessThreshold <= 0 {
		c.HalfOpenSuccessThreshold = d.HalfOpenSuccessThreshold
	}
	return c
}

// StateChangeFunc observes breaker transitions (metrics, events)
type StateChangeFunc func(name string, from, to BreakerState)

// CircuitBreaker tracks failures for one named dependency. The
// open→half-open transition is computed lazily on state query; there is
// no background timer. State lives for the process lifetime only.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu                sync.Mutex
	state             BreakerState
	failureTimestamps []time.Time
	halfOpenSuccesses int
	lastFailure       time.Time

	now           func() time.Time
	onStateChange StateChangeFunc
}

// NewCircuitBreaker creates a closed breaker for a named dependency
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config.withDefaults(),
		state:  BreakerClosed,
		now:    time.Now,
	}
}

// OnStateChange registers a transition observer. Must be called before
// the breaker is shared across goroutines.
func (b *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	b.onStateChange = fn
}

// Name returns the protected dependency's name
func (b *CircuitBreaker) Name() string {
	return b.name
}

// State returns the current state, applying the lazy open→half-open
// transition when the reset timeout has elapsed.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState must be called with the mutex held
func (b *CircuitBreaker) currentState() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.config.ResetTimeout {
		b.transition(BreakerHalfOpen)
		b.halfOpenSuccesses = 0
	}
	return b.state
}

func (b *CircuitBreaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// Execute wraps a call: it rejects with ErrCircuitOpen when the breaker
// is open, otherwise runs fn, records the outcome, and returns fn's error.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	b.mu.Lock()
	state := b.currentState()
	if state == BreakerOpen {
		b.mu.Unlock()
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	b.mu.Unlock()

	err := fn(ctx)
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// recordSuccess counts toward closing a half-open breaker
func (b *CircuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.currentState() != BreakerHalfOpen {
		return
	}
	b.halfOpenSuccesses++
	if b.halfOpenSuccesses >= b.config.HalfOpenSuccessThreshold {
		b.transition(BreakerClosed)
		b.failureTimestamps = nil
		b.halfOpenSuccesses = 0
	}
}

// recordFailure trips the breaker when the windowed count reaches the
// threshold; any failure while half-open reopens immediately.
func (b *CircuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.lastFailure = now

	if b.currentState() == BreakerHalfOpen {
		b.transition(BreakerOpen)
		b.halfOpenSuccesses = 0
		return
	}

	// Drop failures outside the rolling window
	cutoff := now.Add(-b.config.FailureWindow)
	kept := b.failureTimestamps[:0]
	for _, t := range b.failureTimestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failureTimestamps = append(kept, now)

	if len(b.failureTimestamps) >= b.config.FailureThreshold {
		b.transition(BreakerOpen)
	}
}

// Reset forces the breaker back to closed with cleared counters
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(BreakerClosed)
	b.failureTimestamps = nil
	b.halfOpenSuccesses = 0
	b.lastFailure = time.Time{}
}
