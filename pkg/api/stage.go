package api

import (
	"context"
	"fmt"
)

// StageFunc is a single analytical stage in a pipeline graph. It reads the
// current snapshot plus whatever it fetches from external collaborators and
// returns either a partial-update map or an error marker. Blocking waits
// belong inside the ResilientInvoker's retry budget, not in the stage body.
type StageFunc func(ctx context.Context, snap *Snapshot) StageResult

// StageError marks a failed stage. Non-fatal errors are recorded into the
// snapshot and routing continues; fatal errors abort the session.
type StageError struct {
	Stage   string
	Message string
	Fatal   bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Message)
}

// StageResult is the outcome of invoking one stage: a partial-update map
// merged shallowly into the snapshot, or an error marker. Exactly one of
// Updates / Err is meaningful.
type StageResult struct {
	Updates map[string]string
	Err     *StageError
}

// UpdateResult wraps a partial-update map into a successful StageResult.
func UpdateResult(updates map[string]string) StageResult {
	return StageResult{Updates: updates}
}

// SetResult is shorthand for a single-field update.
func SetResult(field, value string) StageResult {
	return StageResult{Updates: map[string]string{field: value}}
}

// ErrorResult marks a non-fatal stage failure: the message is recorded under
// the snapshot's error field and execution continues to the next routed node.
func ErrorResult(stage string, err error) StageResult {
	return StageResult{Err: &StageError{Stage: stage, Message: err.Error()}}
}

// FatalResult marks a failure the rest of the pipeline cannot proceed
// without. The session aborts immediately.
func FatalResult(stage string, err error) StageResult {
	return StageResult{Err: &StageError{Stage: stage, Message: err.Error(), Fatal: true}}
}
