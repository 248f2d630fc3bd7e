package heimdall

import (
	"time"

	"github.com/petrijr/heimdall/pkg/resilience"
)

// Re-export the resilience types stages interact with.

type (
	Invoker         = resilience.Invoker
	RetryPolicy     = resilience.Policy
	BreakerSettings = resilience.BreakerSettings
	CircuitState    = resilience.CircuitState
)

var (
	NewInvoker         = resilience.NewInvoker
	NewDefaultInvoker  = resilience.NewDefaultInvoker
	InvokerFromContext = resilience.FromContext

	ErrCircuitOpen = resilience.ErrCircuitOpen
)

// RetryBuilder provides a fluent way to construct retry policies for the
// ResilientInvoker guarding external calls.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder allowing maxRetries retries after the
// initial call. maxRetries < 0 is treated as 0 (single attempt).
func Retry(maxRetries int) RetryBuilder {
	if maxRetries < 0 {
		maxRetries = 0
	}
	p := resilience.DefaultPolicy()
	p.MaxRetries = maxRetries
	return RetryBuilder{policy: p}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - base > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, base float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.InitialDelay = initial
	if base <= 0 {
		base = 2.0
	}
	p.Base = base
	p.MaxDelay = max
	return RetryBuilder{policy: p}
}

// WithJitter toggles the random [0, 1s) component added to every delay.
func (r RetryBuilder) WithJitter(enabled bool) RetryBuilder {
	p := r.policy
	p.Jitter = enabled
	return RetryBuilder{policy: p}
}

// Policy returns the built retry policy for NewInvoker.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}

// Breaker creates breaker settings for NewInvoker: the circuit for a
// dependency key opens after failureThreshold consecutive exhausted calls
// and admits a trial call again after recoveryTimeout.
func Breaker(failureThreshold int, recoveryTimeout time.Duration) BreakerSettings {
	s := resilience.DefaultBreakerSettings()
	if failureThreshold > 0 {
		s.FailureThreshold = failureThreshold
	}
	if recoveryTimeout > 0 {
		s.RecoveryTimeout = recoveryTimeout
	}
	return s
}
