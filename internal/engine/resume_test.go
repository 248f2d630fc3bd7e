package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/petrijr/heimdall/pkg/api"
)

// startSuspended drives a review-graph session to its gate and returns the
// session id.
func startSuspended(t *testing.T, eng api.Engine, drafts *int) string {
	t.Helper()

	if err := eng.RegisterGraph(reviewGraph(drafts, alwaysAccept)); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}
	st, err := eng.Start(context.Background(), "equity-report", "ACME Corp")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st.State != api.StateAwaitingReview {
		t.Fatalf("expected session parked at gate, got %q", st.State)
	}
	return st.SessionID
}

func TestResume_EmptyFeedbackApprovesAsIs(t *testing.T) {
	for name, factory := range engineFactories() {
		t.Run(name, func(t *testing.T) {
			eng := factory(t)
			drafts := 0
			id := startSuspended(t, eng, &drafts)

			before, _ := eng.Snapshot(context.Background(), id)

			st, err := eng.Resume(context.Background(), id, "")
			if err != nil {
				t.Fatalf("Resume failed: %v", err)
			}
			if st.State != api.StateCompleted {
				t.Fatalf("expected COMPLETED, got %q", st.State)
			}
			if st.ReviewState != api.ReviewApproved {
				t.Fatalf("expected approved, got %q", st.ReviewState)
			}

			after, _ := eng.Snapshot(context.Background(), id)
			if after.Field(api.FieldFinalReport) != before.Field(api.FieldFinalReport) {
				t.Fatalf("approve-as-is must not modify the report")
			}
			if after.Field("delivery") != "report delivered" {
				t.Fatalf("finalize stage did not run after resume")
			}
		})
	}
}

func TestResume_AppliesSectionFeedback(t *testing.T) {
	for name, factory := range engineFactories() {
		t.Run(name, func(t *testing.T) {
			eng := factory(t)
			drafts := 0
			id := startSuspended(t, eng, &drafts)

			st, err := eng.Resume(context.Background(), id, "risk_section: Revised risk text.\n")
			if err != nil {
				t.Fatalf("Resume failed: %v", err)
			}
			if st.State != api.StateCompleted {
				t.Fatalf("expected COMPLETED, got %q", st.State)
			}
			if st.ReviewState != api.ReviewChangesApplied {
				t.Fatalf("expected changes_applied, got %q", st.ReviewState)
			}

			snap, _ := eng.Snapshot(context.Background(), id)
			report := snap.Field(api.FieldFinalReport)
			if !strings.Contains(report, "Revised risk text.") {
				t.Fatalf("risk section not patched:\n%s", report)
			}
			if strings.Contains(report, "Old risk text.") {
				t.Fatalf("old risk section still present:\n%s", report)
			}
			// Untouched sections survive the patch.
			if !strings.Contains(report, "Strong quarter.") || !strings.Contains(report, "Fair value 120.") {
				t.Fatalf("unrelated sections damaged:\n%s", report)
			}
		})
	}
}

func TestResume_IsIdempotentOnceSettled(t *testing.T) {
	eng := NewInMemoryEngine()
	drafts := 0
	id := startSuspended(t, eng, &drafts)

	if _, err := eng.Resume(context.Background(), id, "risk_section: Revised risk text.\n"); err != nil {
		t.Fatalf("first Resume failed: %v", err)
	}
	first, _ := eng.Snapshot(context.Background(), id)

	st, err := eng.Resume(context.Background(), id, "risk_section: Revised risk text.\n")
	if err != nil {
		t.Fatalf("second Resume failed: %v", err)
	}
	if st.State != api.StateCompleted || st.ReviewState != api.ReviewChangesApplied {
		t.Fatalf("second Resume changed terminal outcome: %q/%q", st.State, st.ReviewState)
	}

	second, _ := eng.Snapshot(context.Background(), id)
	if first.Field(api.FieldFinalReport) != second.Field(api.FieldFinalReport) {
		t.Fatalf("second Resume double-patched the report")
	}
	if len(first.Messages) != len(second.Messages) {
		t.Fatalf("second Resume appended to the audit log")
	}
}

func TestResume_FailsWhenNotAtGate(t *testing.T) {
	eng := NewInMemoryEngine()
	if err := eng.RegisterGraph(linearGraph()); err != nil {
		t.Fatalf("RegisterGraph failed: %v", err)
	}
	st, err := eng.Start(context.Background(), "linear", "ACME Corp")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	before, _ := eng.Snapshot(context.Background(), st.SessionID)

	if _, err := eng.Resume(context.Background(), st.SessionID, ""); !errors.Is(err, api.ErrResumeStateMismatch) {
		t.Fatalf("expected ErrResumeStateMismatch, got %v", err)
	}

	// The failed resume must not have touched the session.
	after, _ := eng.Snapshot(context.Background(), st.SessionID)
	if len(after.Messages) != len(before.Messages) {
		t.Fatalf("rejected resume mutated the session")
	}
}

func TestResume_UnknownSessionFails(t *testing.T) {
	eng := NewInMemoryEngine()
	if _, err := eng.Resume(context.Background(), "ghost", ""); !errors.Is(err, api.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestResume_MalformedFeedbackApprovesWithWarning(t *testing.T) {
	eng := NewInMemoryEngine()
	drafts := 0
	id := startSuspended(t, eng, &drafts)

	st, err := eng.Resume(context.Background(), id, "- this\n- is a list\n")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if st.State != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %q", st.State)
	}
	if st.ReviewState != api.ReviewApproved {
		t.Fatalf("malformed feedback should degrade to approval, got %q", st.ReviewState)
	}

	snap, _ := eng.Snapshot(context.Background(), id)
	found := false
	for _, msg := range snap.Messages {
		if strings.Contains(msg.Text, "malformed feedback") {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected a warning entry in the audit log")
	}
	if strings.Contains(snap.Field(api.FieldFinalReport), "is a list") {
		t.Fatalf("malformed feedback leaked into the report")
	}
}

func TestContinue_RejectsSuspendedAndTerminalSessions(t *testing.T) {
	eng := NewInMemoryEngine()
	drafts := 0
	id := startSuspended(t, eng, &drafts)

	if _, err := eng.Continue(context.Background(), id); err == nil {
		t.Fatalf("Continue must not bypass a review gate")
	}

	if _, err := eng.Resume(context.Background(), id, ""); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if _, err := eng.Continue(context.Background(), id); err == nil {
		t.Fatalf("Continue must reject completed sessions")
	}
}
