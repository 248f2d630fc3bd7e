package heimdall

import (
	"context"
	"database/sql"

	"github.com/petrijr/heimdall/internal/engine"
	"github.com/petrijr/heimdall/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	GraphDefinition      = api.GraphDefinition
	StageNode            = api.StageNode
	ConditionalEdge      = api.ConditionalEdge
	StageFunc            = api.StageFunc
	StageResult          = api.StageResult
	StageError           = api.StageError
	RouterFunc           = api.RouterFunc
	Snapshot             = api.Snapshot
	Message              = api.Message
	AnalysisSession      = api.AnalysisSession
	SessionStatus        = api.SessionStatus
	SessionListOptions   = api.SessionListOptions
	StartOptions         = api.StartOptions
	RunState             = api.RunState
	ReviewState          = api.ReviewState
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export stage result helpers and common observer constructors.

var (
	UpdateResult = api.UpdateResult
	SetResult    = api.SetResult
	ErrorResult  = api.ErrorResult
	FatalResult  = api.FatalResult
	FanOutStage  = api.FanOutStage

	DecisionRouter = api.DecisionRouter

	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver

	ErrSessionNotFound     = api.ErrSessionNotFound
	ErrSessionExists       = api.ErrSessionExists
	ErrResumeStateMismatch = api.ErrResumeStateMismatch
)

// Re-export graph and state constants for convenience.

const (
	Terminal = api.Terminal

	DecisionAccept = api.DecisionAccept
	DecisionRevise = api.DecisionRevise

	StatePending        = api.StatePending
	StateRunning        = api.StateRunning
	StateCompleted      = api.StateCompleted
	StateFailed         = api.StateFailed
	StateAwaitingReview = api.StateAwaitingReview

	ReviewPending        = api.ReviewPending
	ReviewApproved       = api.ReviewApproved
	ReviewChangesApplied = api.ReviewChangesApplied

	FieldSubject     = api.FieldSubject
	FieldError       = api.FieldError
	FieldFinalReport = api.FieldFinalReport
)

// Engine constructors
// These wrap the internal/engine package so external callers never need to
// import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists session checkpoints in a
// SQLite database. Graph definitions are kept in-memory and must be
// re-registered on startup.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// Options configures an engine beyond the backend choice. Zero values mean
// defaults: a no-op observer, the default retry/breaker invoker, and a
// revision budget of 3.
type Options struct {
	Observer             Observer
	Invoker              *Invoker
	DefaultMaxIterations int
}

// NewInMemoryEngineWithOptions returns an in-memory Engine with explicit
// collaborators.
func NewInMemoryEngineWithOptions(opts Options) Engine {
	return engine.NewInMemoryEngineWithConfig(engine.Config{
		Observer:             opts.Observer,
		Invoker:              opts.Invoker,
		DefaultMaxIterations: opts.DefaultMaxIterations,
	})
}

// NewSQLiteEngineWithOptions returns a SQLite-backed Engine with explicit
// collaborators.
func NewSQLiteEngineWithOptions(db *sql.DB, opts Options) (Engine, error) {
	return engine.NewSQLiteEngineWithConfig(db, engine.Config{
		Observer:             opts.Observer,
		Invoker:              opts.Invoker,
		DefaultMaxIterations: opts.DefaultMaxIterations,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// Start runs a session synchronously until it completes or suspends for
// review.
func Start(ctx context.Context, eng Engine, graphName, subject string) (*SessionStatus, error) {
	return eng.Start(ctx, graphName, subject)
}

// Status fetches a session summary by id.
func Status(ctx context.Context, eng Engine, sessionID string) (*SessionStatus, error) {
	return eng.Status(ctx, sessionID)
}

// GetSnapshot fetches a copy of the session's accumulated record.
func GetSnapshot(ctx context.Context, eng Engine, sessionID string) (*Snapshot, error) {
	return eng.Snapshot(ctx, sessionID)
}

// Resume delivers reviewer feedback to a session parked at a review gate.
func Resume(ctx context.Context, eng Engine, sessionID, feedback string) (*SessionStatus, error) {
	return eng.Resume(ctx, sessionID, feedback)
}

// ListSessions lists sessions according to the given options.
func ListSessions(ctx context.Context, eng Engine, opts SessionListOptions) ([]*SessionStatus, error) {
	return eng.ListSessions(ctx, opts)
}

// RecoverStuckSessions delegates to eng.RecoverStuckSessions.
//
// It is typically called on process startup before starting any workers:
//
//	count, err := heimdall.RecoverStuckSessions(ctx, engine)
func RecoverStuckSessions(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverStuckSessions(ctx)
}
