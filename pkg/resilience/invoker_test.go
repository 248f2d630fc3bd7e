package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"
)

// newTestInvoker returns an invoker with a fake clock, recorded sleeps, and
// a deterministic jitter source.
func newTestInvoker(policy Policy, settings BreakerSettings) (*Invoker, *time.Time, *[]time.Duration) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration

	inv := NewInvoker(policy, settings)
	inv.now = func() time.Time { return now }
	inv.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	inv.jitter = rand.New(rand.NewSource(42)).Float64
	return inv, &now, &slept
}

func TestDo_RetriesThenPropagatesLastError(t *testing.T) {
	policy := Policy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, Base: 2.0}
	inv, _, slept := newTestInvoker(policy, DefaultBreakerSettings())

	calls := 0
	boom := errors.New("boom")
	err := inv.Do(context.Background(), "fmp", func(ctx context.Context) error {
		calls++
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("expected last error to propagate, got %v", err)
	}
	// MaxRetries=3 means 4 total attempts and 3 backoff sleeps.
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
	if len(*slept) != 3 {
		t.Fatalf("expected 3 backoff delays, got %d", len(*slept))
	}

	// Delays follow initial × base^n; jitter is off for this policy.
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, d := range *slept {
		if d != want[i] {
			t.Fatalf("delay %d: expected %v, got %v", i, want[i], d)
		}
	}
}

func TestDo_JitterStaysWithinOneSecond(t *testing.T) {
	policy := Policy{MaxRetries: 2, InitialDelay: 50 * time.Millisecond, Base: 2.0, Jitter: true}
	inv, _, slept := newTestInvoker(policy, DefaultBreakerSettings())

	_ = inv.Do(context.Background(), "news", func(ctx context.Context) error {
		return errors.New("unavailable")
	})

	bases := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}
	if len(*slept) != len(bases) {
		t.Fatalf("expected %d delays, got %d", len(bases), len(*slept))
	}
	for i, d := range *slept {
		if d < bases[i] || d >= bases[i]+time.Second {
			t.Fatalf("delay %d: %v outside [%v, %v)", i, d, bases[i], bases[i]+time.Second)
		}
	}
}

// One Invoker is shared by every session on an engine, so concurrent jitter
// draws must be synchronized. Run with -race to catch regressions here.
func TestDo_ConcurrentSessionsShareJitterSource(t *testing.T) {
	inv := NewInvoker(
		Policy{MaxRetries: 1, InitialDelay: time.Millisecond, Base: 2.0, Jitter: true},
		DefaultBreakerSettings(),
	)
	inv.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			key := fmt.Sprintf("dep-%d", g)
			for i := 0; i < 50; i++ {
				flaky := true
				err := inv.Do(context.Background(), key, func(ctx context.Context) error {
					if flaky {
						flaky = false
						return errors.New("transient")
					}
					return nil
				})
				if err != nil {
					t.Errorf("guarded call failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestDo_MaxDelayCapsBackoff(t *testing.T) {
	policy := Policy{MaxRetries: 4, InitialDelay: 100 * time.Millisecond, Base: 10.0, MaxDelay: 500 * time.Millisecond}
	inv, _, slept := newTestInvoker(policy, DefaultBreakerSettings())

	_ = inv.Do(context.Background(), "sec", func(ctx context.Context) error {
		return errors.New("throttled")
	})

	for i, d := range *slept {
		if d > 500*time.Millisecond {
			t.Fatalf("delay %d: %v exceeds cap", i, d)
		}
	}
}

func TestDo_SuccessfulCallResetsFailureCount(t *testing.T) {
	inv, _, _ := newTestInvoker(Policy{MaxRetries: 0}, BreakerSettings{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second})

	fail := func(ctx context.Context) error { return errors.New("nope") }
	ok := func(ctx context.Context) error { return nil }

	_ = inv.Do(context.Background(), "db", fail)
	_ = inv.Do(context.Background(), "db", fail)
	if err := inv.Do(context.Background(), "db", ok); err != nil {
		t.Fatalf("successful call failed: %v", err)
	}

	state, count := inv.State("db")
	if state != CircuitClosed || count != 0 {
		t.Fatalf("expected closed/0 after success, got %s/%d", state, count)
	}
}

func TestBreaker_OpensAfterThresholdAndFailsFast(t *testing.T) {
	inv, now, _ := newTestInvoker(Policy{MaxRetries: 0}, BreakerSettings{FailureThreshold: 3, RecoveryTimeout: 30 * time.Second})

	calls := 0
	fail := func(ctx context.Context) error {
		calls++
		return errors.New("down")
	}

	for i := 0; i < 3; i++ {
		_ = inv.Do(context.Background(), "vendor", fail)
	}

	state, count := inv.State("vendor")
	if state != CircuitOpen {
		t.Fatalf("expected open after 3 consecutive failures, got %s (count=%d)", state, count)
	}

	// Before the recovery timeout: fail fast, dependency never invoked.
	before := calls
	err := inv.Do(context.Background(), "vendor", fail)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != before {
		t.Fatalf("open breaker must not invoke the dependency")
	}

	// After the recovery timeout: a single half-open trial goes through
	// and its success closes the breaker with the count reset.
	*now = now.Add(31 * time.Second)
	if err := inv.Do(context.Background(), "vendor", func(ctx context.Context) error {
		calls++
		return nil
	}); err != nil {
		t.Fatalf("half-open trial should succeed: %v", err)
	}

	state, count = inv.State("vendor")
	if state != CircuitClosed || count != 0 {
		t.Fatalf("expected closed/0 after recovery, got %s/%d", state, count)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	inv, now, _ := newTestInvoker(Policy{MaxRetries: 0}, BreakerSettings{FailureThreshold: 1, RecoveryTimeout: 10 * time.Second})

	fail := func(ctx context.Context) error { return errors.New("still down") }

	_ = inv.Do(context.Background(), "feed", fail)
	if state, _ := inv.State("feed"); state != CircuitOpen {
		t.Fatalf("expected open, got %s", state)
	}

	*now = now.Add(11 * time.Second)
	_ = inv.Do(context.Background(), "feed", fail)

	if state, _ := inv.State("feed"); state != CircuitOpen {
		t.Fatalf("expected re-open after failed trial, got %s", state)
	}

	// openedAt was refreshed by the trial failure, so the very next call
	// fails fast again.
	err := inv.Do(context.Background(), "feed", fail)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected fail-fast after re-open, got %v", err)
	}
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	inv, _, _ := newTestInvoker(Policy{MaxRetries: 0}, BreakerSettings{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	_ = inv.Do(context.Background(), "bad", func(ctx context.Context) error { return errors.New("x") })

	if err := inv.Do(context.Background(), "good", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("unrelated key affected by open breaker: %v", err)
	}
}

func TestInvoke_ReturnsValue(t *testing.T) {
	inv, _, _ := newTestInvoker(Policy{MaxRetries: 1}, DefaultBreakerSettings())

	calls := 0
	got, err := Invoke(context.Background(), inv, "quote", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("flaky")
		}
		return "42.50", nil
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != "42.50" {
		t.Fatalf("expected value from retried call, got %q", got)
	}
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	inv := NewInvoker(Policy{MaxRetries: 5, InitialDelay: time.Millisecond}, DefaultBreakerSettings())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := inv.Do(ctx, "slow", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("err")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
}
