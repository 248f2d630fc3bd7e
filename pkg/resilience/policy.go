package resilience

import "time"

// Policy controls how a guarded call is retried when it returns an error.
// MaxRetries counts retries after the first attempt:
//
//	MaxRetries = 0 => just the initial call
//	MaxRetries = 3 => initial call + up to 3 retries (4 attempts total)
//
// The delay before retry n (0-based) is InitialDelay × Base^n, capped by
// MaxDelay when set, plus a random jitter in [0,1) seconds when Jitter is
// enabled.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Base         float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DefaultPolicy mirrors the usual dependency-call budget: three retries with
// 1s initial delay doubling each attempt, with jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Base:         2.0,
		Jitter:       true,
	}
}

// Delay computes the backoff before retry attempt n (0-based). jitter must
// return values in [0, 1) and be safe for concurrent use; it may be nil when
// Jitter is disabled.
func (p Policy) Delay(attempt int, jitter func() float64) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 2.0
	}
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * base)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && jitter != nil {
		d += time.Duration(jitter() * float64(time.Second))
	}
	return d
}

// BreakerSettings configures the per-dependency circuit breakers.
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive failed guarded calls
	// that trips the breaker from closed to open.
	FailureThreshold int

	// RecoveryTimeout is how long an open breaker fails fast before
	// admitting a single half-open trial call.
	RecoveryTimeout time.Duration
}

// DefaultBreakerSettings: three strikes, thirty seconds to recover.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}
