package api

import (
	"errors"
	"time"
)

// RunState represents the lifecycle state of an analysis session.
type RunState string

const (
	StatePending        RunState = "PENDING"
	StateRunning        RunState = "RUNNING"
	StateCompleted      RunState = "COMPLETED"
	StateFailed         RunState = "FAILED"
	StateAwaitingReview RunState = "AWAITING_REVIEW"
)

// ReviewState tracks where a session stands in the human-review protocol.
// It is empty until the session first reaches a review gate.
type ReviewState string

const (
	ReviewPending        ReviewState = "pending"
	ReviewApproved       ReviewState = "approved"
	ReviewChangesApplied ReviewState = "changes_applied"
)

// Terminal returns true once the review outcome is settled. A session with a
// terminal review state is committed to the finalize path and may not
// re-enter the decision loop.
func (r ReviewState) Terminal() bool {
	return r == ReviewApproved || r == ReviewChangesApplied
}

// AnalysisSession identifies one end-to-end pipeline run for a single
// subject. It is created once at session start and never mutated.
type AnalysisSession struct {
	ID        string
	Subject   string
	GraphName string
	CreatedAt time.Time
}

// Checkpoint is the durable (Snapshot, cursor) pair for one session. The
// engine overwrites it at every node boundary; only the latest boundary is
// retained. Deleting checkpoints is the caller's retention policy, not the
// engine's.
type Checkpoint struct {
	Session  AnalysisSession
	State    RunState
	Cursor   string
	Snapshot *Snapshot

	UpdatedAt time.Time
}

// SessionStatus is the caller-facing summary of a session: the current
// cursor, run and review state, iteration counters, and the names of the
// report fields accumulated so far.
type SessionStatus struct {
	SessionID   string
	Subject     string
	GraphName   string
	State       RunState
	Cursor      string
	ReviewState ReviewState

	IterationCount int
	MaxIterations  int

	// FieldNames lists the snapshot's populated field names, sorted.
	// Field values are intentionally omitted; use Engine.Snapshot for the
	// full record.
	FieldNames []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionListOptions controls how sessions are listed.
// Zero values mean "no filter" for that field.
type SessionListOptions struct {
	// GraphName, if non-empty, limits results to sessions of the given graph.
	GraphName string

	// State, if non-empty, limits results to sessions in the given run state.
	State RunState
}

var (
	// ErrSessionNotFound is returned when no checkpoint exists for a
	// session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned by Start when a checkpoint already
	// exists for the requested session id.
	ErrSessionExists = errors.New("session already exists")

	// ErrResumeStateMismatch is returned by Resume when the persisted
	// cursor is not parked at a human-review gate.
	ErrResumeStateMismatch = errors.New("resume state mismatch: session is not awaiting review")
)
