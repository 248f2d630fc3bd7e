package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay session execution.
type Observer interface {
	// OnSessionStart is called once when a session is first started,
	// before the entry node executes.
	OnSessionStart(ctx context.Context, st *SessionStatus)

	// OnSessionCompleted is called when a session reaches Terminal.
	OnSessionCompleted(ctx context.Context, st *SessionStatus)

	// OnSessionFailed is called when a session transitions to StateFailed.
	OnSessionFailed(ctx context.Context, st *SessionStatus, err error)

	// OnSessionSuspended is called when the executor parks a session at a
	// human-review gate.
	OnSessionSuspended(ctx context.Context, st *SessionStatus, gate string)

	// OnSessionResumed is called when Resume advances a session past a
	// gate, after any feedback has been applied.
	OnSessionResumed(ctx context.Context, st *SessionStatus, gate string)

	// OnStageStart is called before invoking a stage function.
	OnStageStart(ctx context.Context, st *SessionStatus, stage string)

	// OnStageCompleted is called after a stage function returns, for both
	// successes and failures (err != nil).
	OnStageCompleted(ctx context.Context, st *SessionStatus, stage string, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnSessionStart(ctx context.Context, st *SessionStatus)                  {}
func (NoopObserver) OnSessionCompleted(ctx context.Context, st *SessionStatus)              {}
func (NoopObserver) OnSessionFailed(ctx context.Context, st *SessionStatus, err error)      {}
func (NoopObserver) OnSessionSuspended(ctx context.Context, st *SessionStatus, gate string) {}
func (NoopObserver) OnSessionResumed(ctx context.Context, st *SessionStatus, gate string)   {}
func (NoopObserver) OnStageStart(ctx context.Context, st *SessionStatus, stage string)      {}
func (NoopObserver) OnStageCompleted(ctx context.Context, st *SessionStatus, stage string, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnSessionStart(ctx context.Context, st *SessionStatus) {
	for _, o := range c.observers {
		o.OnSessionStart(ctx, st)
	}
}

func (c *CompositeObserver) OnSessionCompleted(ctx context.Context, st *SessionStatus) {
	for _, o := range c.observers {
		o.OnSessionCompleted(ctx, st)
	}
}

func (c *CompositeObserver) OnSessionFailed(ctx context.Context, st *SessionStatus, err error) {
	for _, o := range c.observers {
		o.OnSessionFailed(ctx, st, err)
	}
}

func (c *CompositeObserver) OnSessionSuspended(ctx context.Context, st *SessionStatus, gate string) {
	for _, o := range c.observers {
		o.OnSessionSuspended(ctx, st, gate)
	}
}

func (c *CompositeObserver) OnSessionResumed(ctx context.Context, st *SessionStatus, gate string) {
	for _, o := range c.observers {
		o.OnSessionResumed(ctx, st, gate)
	}
}

func (c *CompositeObserver) OnStageStart(ctx context.Context, st *SessionStatus, stage string) {
	for _, o := range c.observers {
		o.OnStageStart(ctx, st, stage)
	}
}

func (c *CompositeObserver) OnStageCompleted(ctx context.Context, st *SessionStatus, stage string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStageCompleted(ctx, st, stage, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs session / stage lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnSessionStart(ctx context.Context, st *SessionStatus) {
	o.Logger.InfoContext(ctx, "session_start",
		slog.String("graph", st.GraphName),
		slog.String("session_id", st.SessionID),
		slog.String("subject", st.Subject),
	)
}

func (o *LoggingObserver) OnSessionCompleted(ctx context.Context, st *SessionStatus) {
	o.Logger.InfoContext(ctx, "session_completed",
		slog.String("graph", st.GraphName),
		slog.String("session_id", st.SessionID),
		slog.Int("iterations", st.IterationCount),
	)
}

func (o *LoggingObserver) OnSessionFailed(ctx context.Context, st *SessionStatus, err error) {
	o.Logger.ErrorContext(ctx, "session_failed",
		slog.String("graph", st.GraphName),
		slog.String("session_id", st.SessionID),
		slog.String("cursor", st.Cursor),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnSessionSuspended(ctx context.Context, st *SessionStatus, gate string) {
	o.Logger.InfoContext(ctx, "session_suspended",
		slog.String("graph", st.GraphName),
		slog.String("session_id", st.SessionID),
		slog.String("gate", gate),
	)
}

func (o *LoggingObserver) OnSessionResumed(ctx context.Context, st *SessionStatus, gate string) {
	o.Logger.InfoContext(ctx, "session_resumed",
		slog.String("graph", st.GraphName),
		slog.String("session_id", st.SessionID),
		slog.String("gate", gate),
		slog.String("review_state", string(st.ReviewState)),
	)
}

func (o *LoggingObserver) OnStageStart(ctx context.Context, st *SessionStatus, stage string) {
	o.Logger.DebugContext(ctx, "stage_start",
		slog.String("graph", st.GraphName),
		slog.String("session_id", st.SessionID),
		slog.String("stage", stage),
	)
}

func (o *LoggingObserver) OnStageCompleted(ctx context.Context, st *SessionStatus, stage string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "stage_completed",
		slog.String("graph", st.GraphName),
		slog.String("session_id", st.SessionID),
		slog.String("stage", stage),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate stage durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	sessionsStarted    atomic.Int64
	sessionsCompleted  atomic.Int64
	sessionsFailed     atomic.Int64
	sessionsSuspended  atomic.Int64
	stagesCompleted    atomic.Int64
	totalStageDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64
	SessionsSuspended int64

	StagesCompleted  int64
	AvgStageDuration time.Duration
}

func (m *BasicMetrics) OnSessionStart(ctx context.Context, st *SessionStatus) {
	m.sessionsStarted.Add(1)
}

func (m *BasicMetrics) OnSessionCompleted(ctx context.Context, st *SessionStatus) {
	m.sessionsCompleted.Add(1)
}

func (m *BasicMetrics) OnSessionFailed(ctx context.Context, st *SessionStatus, err error) {
	m.sessionsFailed.Add(1)
}

func (m *BasicMetrics) OnSessionSuspended(ctx context.Context, st *SessionStatus, gate string) {
	m.sessionsSuspended.Add(1)
}

func (m *BasicMetrics) OnStageCompleted(ctx context.Context, st *SessionStatus, stage string, err error, d time.Duration) {
	// Only count successful stages for average duration.
	if err == nil {
		m.stagesCompleted.Add(1)
		m.totalStageDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	stages := m.stagesCompleted.Load()
	totalNs := m.totalStageDuration.Load()

	var avg time.Duration
	if stages > 0 {
		avg = time.Duration(totalNs / stages)
	}

	return BasicMetricsSnapshot{
		SessionsStarted:   m.sessionsStarted.Load(),
		SessionsCompleted: m.sessionsCompleted.Load(),
		SessionsFailed:    m.sessionsFailed.Load(),
		SessionsSuspended: m.sessionsSuspended.Load(),
		StagesCompleted:   stages,
		AvgStageDuration:  avg,
	}
}
