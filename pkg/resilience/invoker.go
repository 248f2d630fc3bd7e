package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Invoker shields external calls behind exponential-backoff retry and a
// per-dependency circuit breaker. The two compose: retries happen inside a
// single breaker-guarded call, and an open breaker fails fast with no
// retries at all.
//
// An Invoker is safe for concurrent use; breakers are keyed per dependency
// and independent of each other.
type Invoker struct {
	policy   Policy
	settings BreakerSettings

	mu       sync.Mutex
	breakers map[string]*breaker

	// Injection points for tests. now defaults to time.Now; sleep defaults
	// to a context-aware timer wait; jitter defaults to the locked top-level
	// rand.Float64, since one Invoker serves many concurrent sessions.
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewInvoker creates an Invoker with the given retry policy and breaker
// settings.
func NewInvoker(policy Policy, settings BreakerSettings) *Invoker {
	return &Invoker{
		policy:   policy,
		settings: settings,
		breakers: make(map[string]*breaker),
		now:      time.Now,
		sleep:    sleepCtx,
		jitter:   rand.Float64,
	}
}

// NewDefaultInvoker creates an Invoker with DefaultPolicy and
// DefaultBreakerSettings.
func NewDefaultInvoker() *Invoker {
	return NewInvoker(DefaultPolicy(), DefaultBreakerSettings())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (inv *Invoker) breaker(key string) *breaker {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	b, ok := inv.breakers[key]
	if !ok {
		b = newBreaker(inv.settings)
		inv.breakers[key] = b
	}
	return b
}

// State reports the circuit state and consecutive-failure count for a
// dependency key. A key that has never been called reports closed / 0.
func (inv *Invoker) State(key string) (CircuitState, int) {
	return inv.breaker(key).snapshot()
}

// Do runs fn as one breaker-guarded call against the named dependency,
// retrying per the policy. On exhaustion it records one breaker failure and
// propagates the last error. If the breaker is open the call fails
// immediately and fn is never invoked.
func (inv *Invoker) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	b := inv.breaker(key)
	if err := b.allow(key, inv.now()); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			// Cancellation is not a dependency fault; release the
			// half-open trial slot without reopening.
			b.releaseTrial()
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			b.success()
			return nil
		}

		if attempt == inv.policy.MaxRetries {
			break
		}

		if err := inv.sleep(ctx, inv.policy.Delay(attempt, inv.jitter)); err != nil {
			b.releaseTrial()
			return err
		}
	}

	b.failure(inv.now())
	return lastErr
}

// Invoke is the generic value-returning form of Invoker.Do.
func Invoke[T any](ctx context.Context, inv *Invoker, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := inv.Do(ctx, key, func(ctx context.Context) error {
		var callErr error
		out, callErr = fn(ctx)
		return callErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

type contextKey string

const invokerKey contextKey = "heimdall.invoker"

// WithInvoker attaches an Invoker to the context. The engine does this for
// every stage invocation so stage code can guard its external calls without
// global state.
func WithInvoker(ctx context.Context, inv *Invoker) context.Context {
	return context.WithValue(ctx, invokerKey, inv)
}

// FromContext returns the Invoker attached by WithInvoker. If none is
// present it returns a default Invoker so stage code never has to nil-check.
func FromContext(ctx context.Context) *Invoker {
	if inv, ok := ctx.Value(invokerKey).(*Invoker); ok && inv != nil {
		return inv
	}
	return NewDefaultInvoker()
}
