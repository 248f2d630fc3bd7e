package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the fault-isolation state of one dependency key.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// ErrCircuitOpen is returned (wrapped) when a guarded call fails fast
// because the dependency's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// breaker is the state machine for a single dependency key. All transitions
// happen under mu so concurrent sessions hitting the same dependency never
// lose updates.
type breaker struct {
	mu sync.Mutex

	settings BreakerSettings

	state        CircuitState
	failureCount int
	openedAt     time.Time

	// trialInFlight guards the half-open state: exactly one call is
	// admitted until it reports success or failure.
	trialInFlight bool
}

func newBreaker(settings BreakerSettings) *breaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = DefaultBreakerSettings().FailureThreshold
	}
	if settings.RecoveryTimeout <= 0 {
		settings.RecoveryTimeout = DefaultBreakerSettings().RecoveryTimeout
	}
	return &breaker{
		settings: settings,
		state:    CircuitClosed,
	}
}

// allow decides whether a guarded call may proceed at time now. In the open
// state it fails fast until RecoveryTimeout has elapsed, then admits one
// half-open trial.
func (b *breaker) allow(key string, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if now.Sub(b.openedAt) > b.settings.RecoveryTimeout {
			b.state = CircuitHalfOpen
			b.trialInFlight = true
			return nil
		}
		return fmt.Errorf("dependency %s: %w", key, ErrCircuitOpen)
	case CircuitHalfOpen:
		if b.trialInFlight {
			return fmt.Errorf("dependency %s: trial call in flight: %w", key, ErrCircuitOpen)
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// success records a successful guarded call: half-open closes, and the
// consecutive-failure count resets.
func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = CircuitClosed
	b.failureCount = 0
	b.trialInFlight = false
}

// failure records an exhausted guarded call at time now. A half-open trial
// failure reopens immediately; in the closed state the breaker opens once
// the consecutive-failure count reaches the threshold.
func (b *breaker) failure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		b.openedAt = now
		b.trialInFlight = false
		return
	}

	b.failureCount++
	if b.failureCount >= b.settings.FailureThreshold {
		b.state = CircuitOpen
		b.openedAt = now
	}
}

// releaseTrial frees the half-open trial slot without recording an outcome.
// Used when a guarded call is abandoned due to context cancellation.
func (b *breaker) releaseTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// snapshot returns the current state without transitioning.
func (b *breaker) snapshot() (CircuitState, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failureCount
}
