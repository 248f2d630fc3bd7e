package heimdall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForState(t *testing.T, eng Engine, sessionID string, want RunState) *SessionStatus {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := Status(context.Background(), eng, sessionID)
		if err == nil && st.State == want {
			return st
		}
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("Status failed: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached %q", sessionID, want)
	return nil
}

func TestLocalRunner_AsyncSessionWithReview(t *testing.T) {
	runner := NewLocalRunner()
	defer runner.Stop()

	graph := NewGraph("async-report").
		Stage("draft", noopStage(FieldFinalReport, "Risk Section:\nOld risk text.")).
		Gate("review").
		Stage("finalize", noopStage("delivery", "done")).
		Edge("draft", "review").
		Edge("review", "finalize").
		Edge("finalize", Terminal)
	graph.MustRegister(runner.Engine)

	ctx := context.Background()
	require.NoError(t, runner.StartWorkers(ctx, 2))

	id, err := runner.StartSessionAsync(ctx, "async-report", "ACME Corp")
	require.NoError(t, err)

	waitForState(t, runner.Engine, id, StateAwaitingReview)

	require.NoError(t, runner.ResumeAsync(ctx, id, "risk_section: Revised risk text.\n"))
	st := waitForState(t, runner.Engine, id, StateCompleted)
	require.Equal(t, ReviewChangesApplied, st.ReviewState)

	snap, err := GetSnapshot(ctx, runner.Engine, id)
	require.NoError(t, err)
	require.Contains(t, snap.Field(FieldFinalReport), "Revised risk text.")
}

func TestLocalRunner_StartTwiceFails(t *testing.T) {
	runner := NewLocalRunner()
	defer runner.Stop()

	require.NoError(t, runner.StartWorkers(context.Background(), 1))
	require.Error(t, runner.StartWorkers(context.Background(), 1))

	runner.Stop()
	// After Stop the runner can be started again.
	require.NoError(t, runner.StartWorkers(context.Background(), 1))
}
