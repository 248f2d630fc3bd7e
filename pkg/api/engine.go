package api

import "context"

// StartOptions tunes a single session at creation time.
type StartOptions struct {
	// MaxIterations bounds the decision loop's revise cycles. Zero means
	// the engine default.
	MaxIterations int

	// SessionID, if non-empty, is used instead of a generated id. Useful
	// for tests and for callers with their own identity scheme.
	SessionID string
}

// Engine drives analysis sessions through a registered graph. One engine
// instance drives one session's cursor at a time; distinct sessions are
// independent and may be driven concurrently.
type Engine interface {
	// RegisterGraph registers a validated graph definition by name.
	RegisterGraph(def GraphDefinition) error

	// Start creates a session for the subject and drives it synchronously
	// until the first suspend point or Terminal.
	Start(ctx context.Context, graphName, subject string) (*SessionStatus, error)

	// StartWithOptions is Start with per-session tuning.
	StartWithOptions(ctx context.Context, graphName, subject string, opts StartOptions) (*SessionStatus, error)

	// Status reports the session's cursor, run state, review state and a
	// snapshot summary.
	Status(ctx context.Context, sessionID string) (*SessionStatus, error)

	// Snapshot returns a copy of the session's full accumulated record.
	Snapshot(ctx context.Context, sessionID string) (*Snapshot, error)

	// Resume continues a session parked at a human-review gate. feedback is
	// a YAML mapping of section name to replacement text; empty means
	// approve as-is. Resume is idempotent once the review outcome is
	// terminal. Calling it when the cursor is not at a gate fails with
	// ErrResumeStateMismatch and mutates nothing.
	Resume(ctx context.Context, sessionID string, feedback string) (*SessionStatus, error)

	// Continue re-drives a session from its last checkpoint. It is the
	// crash-recovery path for sessions that were RUNNING when the process
	// died or whose context was cancelled at a node boundary.
	Continue(ctx context.Context, sessionID string) (*SessionStatus, error)

	// ListSessions returns session summaries matching the given options.
	ListSessions(ctx context.Context, opts SessionListOptions) ([]*SessionStatus, error)

	// RecoverStuckSessions re-drives every session whose checkpoint was
	// left RUNNING or PENDING, typically after a process restart and before
	// any workers are started. It returns the number of sessions it drove.
	RecoverStuckSessions(ctx context.Context) (int, error)
}

// contextKey is private so engine context values cannot collide with other
// packages.
type contextKey string

const engineKey contextKey = "heimdall.engine"

// WithEngine attaches an Engine to the context. The executor does this for
// every stage invocation so stages can reach engine APIs without globals.
func WithEngine(ctx context.Context, e Engine) context.Context {
	return context.WithValue(ctx, engineKey, e)
}

// EngineFromContext returns the Engine attached by WithEngine, or nil.
func EngineFromContext(ctx context.Context) Engine {
	e, _ := ctx.Value(engineKey).(Engine)
	return e
}
