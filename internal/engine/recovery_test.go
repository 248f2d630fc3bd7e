package engine

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/heimdall/internal/persistence"
	"github.com/petrijr/heimdall/pkg/api"
)

// TestResume_SurvivesProcessRestart parks a session at the review gate with
// one engine, then resumes it with a second engine over the same database,
// simulating a process restart with graphs re-registered on startup.
func TestResume_SurvivesProcessRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "heimdall.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	db1, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}

	eng1, err := NewSQLiteEngine(db1)
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	drafts1 := 0
	id := startSuspended(t, eng1, &drafts1)
	_ = db1.Close()

	// Simulated restart.
	db2, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })

	eng2, err := NewSQLiteEngine(db2)
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	drafts2 := 0
	if err := eng2.RegisterGraph(reviewGraph(&drafts2, alwaysAccept)); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}

	st, err := eng2.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status after restart failed: %v", err)
	}
	if st.State != api.StateAwaitingReview {
		t.Fatalf("suspension not durable, got %q", st.State)
	}

	st, err = eng2.Resume(context.Background(), id, "risk_section: Revised after restart.\n")
	if err != nil {
		t.Fatalf("Resume after restart failed: %v", err)
	}
	if st.State != api.StateCompleted || st.ReviewState != api.ReviewChangesApplied {
		t.Fatalf("unexpected outcome after restart: %q/%q", st.State, st.ReviewState)
	}

	snap, _ := eng2.Snapshot(context.Background(), id)
	if snap.Field("delivery") != "report delivered" {
		t.Fatalf("finalize stage did not run after restart")
	}
}

// Cancellation at a node boundary leaves a RUNNING checkpoint behind;
// Continue picks the walk back up without re-running completed stages.
func TestContinue_AfterCancellationAtNodeBoundary(t *testing.T) {
	eng := NewInMemoryEngine()

	firstRuns, secondRuns := 0, 0
	ctx, cancel := context.WithCancel(context.Background())

	def := api.GraphDefinition{
		Name:  "interruptible",
		Entry: "first",
		Nodes: []api.StageNode{
			{Name: "first", Fn: func(ctx context.Context, snap *api.Snapshot) api.StageResult {
				firstRuns++
				cancel()
				return api.SetResult("first_out", "done")
			}},
			{Name: "second", Fn: func(ctx context.Context, snap *api.Snapshot) api.StageResult {
				secondRuns++
				return api.SetResult("second_out", "done")
			}},
		},
		Edges: map[string]string{
			"first":  "second",
			"second": api.Terminal,
		},
	}
	if err := eng.RegisterGraph(def); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}

	st, err := eng.Start(ctx, "interruptible", "ACME Corp")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if st.State != api.StateRunning {
		t.Fatalf("cancelled session should stay RUNNING, got %q", st.State)
	}
	if st.Cursor != "second" {
		t.Fatalf("first stage result should be checkpointed, cursor=%q", st.Cursor)
	}

	st, err = eng.Continue(context.Background(), st.SessionID)
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if st.State != api.StateCompleted {
		t.Fatalf("expected COMPLETED after Continue, got %q", st.State)
	}
	if firstRuns != 1 || secondRuns != 1 {
		t.Fatalf("stages re-ran: first=%d second=%d", firstRuns, secondRuns)
	}

	snap, _ := eng.Snapshot(context.Background(), st.SessionID)
	if snap.Field("first_out") != "done" || snap.Field("second_out") != "done" {
		t.Fatalf("stage outputs lost across Continue: %+v", snap.Fields)
	}
}

func TestRecoverStuckSessions_DrivesRunningCheckpoints(t *testing.T) {
	store := persistence.NewInMemoryStore()
	eng, err := NewEngine(Config{Checkpoints: store})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := eng.RegisterGraph(linearGraph()); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}

	// A checkpoint a crashed process left mid-graph.
	snap := api.NewSnapshot(3)
	snap.Merge(map[string]string{
		api.FieldSubject: "ACME Corp",
		"plan":           "outline for ACME Corp",
	})
	stuck := &api.Checkpoint{
		Session: api.AnalysisSession{
			ID:        "stuck-1",
			Subject:   "ACME Corp",
			GraphName: "linear",
			CreatedAt: time.Now(),
		},
		State:    api.StateRunning,
		Cursor:   "research",
		Snapshot: snap,
	}
	if err := store.SaveCheckpoint(stuck); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	driven, err := eng.RecoverStuckSessions(context.Background())
	if err != nil {
		t.Fatalf("RecoverStuckSessions failed: %v", err)
	}
	if driven != 1 {
		t.Fatalf("expected 1 driven session, got %d", driven)
	}

	st, err := eng.Status(context.Background(), "stuck-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.State != api.StateCompleted {
		t.Fatalf("expected recovered session to complete, got %q", st.State)
	}

	got, _ := eng.Snapshot(context.Background(), "stuck-1")
	if got.Field("plan") != "outline for ACME Corp" {
		t.Fatalf("pre-crash progress lost: %+v", got.Fields)
	}
}

// A crash between session creation and the first node boundary leaves a
// PENDING checkpoint at the entry node; recovery drives it like any other
// stuck session.
func TestRecoverStuckSessions_DrivesPendingCheckpoints(t *testing.T) {
	store := persistence.NewInMemoryStore()
	eng, err := NewEngine(Config{Checkpoints: store})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := eng.RegisterGraph(linearGraph()); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}

	snap := api.NewSnapshot(3)
	snap.Merge(map[string]string{api.FieldSubject: "ACME Corp"})
	if err := store.SaveCheckpoint(&api.Checkpoint{
		Session: api.AnalysisSession{
			ID:        "fresh-1",
			Subject:   "ACME Corp",
			GraphName: "linear",
			CreatedAt: time.Now(),
		},
		State:    api.StatePending,
		Cursor:   "plan",
		Snapshot: snap,
	}); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	driven, err := eng.RecoverStuckSessions(context.Background())
	if err != nil {
		t.Fatalf("RecoverStuckSessions failed: %v", err)
	}
	if driven != 1 {
		t.Fatalf("expected 1 driven session, got %d", driven)
	}

	st, err := eng.Status(context.Background(), "fresh-1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.State != api.StateCompleted {
		t.Fatalf("expected recovered session to complete, got %q", st.State)
	}
}

func TestRecoverStuckSessions_NothingToDo(t *testing.T) {
	eng := NewInMemoryEngine()
	driven, err := eng.RecoverStuckSessions(context.Background())
	if err != nil {
		t.Fatalf("RecoverStuckSessions failed: %v", err)
	}
	if driven != 0 {
		t.Fatalf("expected 0 driven sessions, got %d", driven)
	}
}
