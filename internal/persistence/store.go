package persistence

import (
	"errors"

	"github.com/petrijr/heimdall/pkg/api"
)

// ErrCheckpointNotFound is returned when no checkpoint exists for a session.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// ErrCheckpointExists is returned when saving a checkpoint for a session
// that already has one.
var ErrCheckpointExists = errors.New("checkpoint already exists")

// CheckpointFilter selects checkpoints from the store.
// Empty string / zero state mean "no filter" for that field.
type CheckpointFilter struct {
	GraphName string
	State     api.RunState
}

// CheckpointStore is the durable persistence contract for session
// checkpoints: one record per session id, overwritten at every node
// boundary. Implementations must support concurrent access keyed by
// distinct session ids without cross-session interference, and must hand
// out copies so callers cannot mutate stored state in place.
type CheckpointStore interface {
	// SaveCheckpoint creates the session's checkpoint. It fails with
	// ErrCheckpointExists if one is already present.
	SaveCheckpoint(cp *api.Checkpoint) error

	// UpdateCheckpoint overwrites the session's checkpoint. It fails with
	// ErrCheckpointNotFound if none exists yet.
	UpdateCheckpoint(cp *api.Checkpoint) error

	// GetCheckpoint returns the current checkpoint for a session.
	GetCheckpoint(sessionID string) (*api.Checkpoint, error)

	// ListCheckpoints returns checkpoints matching the filter.
	ListCheckpoints(filter CheckpointFilter) ([]*api.Checkpoint, error)

	// DeleteCheckpoint removes a session's checkpoint. Retention is the
	// caller's policy; the engine never calls this itself. Deleting a
	// missing checkpoint is not an error.
	DeleteCheckpoint(sessionID string) error
}
