// Package heimdall provides an embeddable orchestration core for multi-stage
// report-generation pipelines.
//
// Heimdall drives an analysis session through a graph of stages - planning,
// domain analyses, aggregation, validation - with a bounded revise loop and a
// human-review gate before final delivery. It runs fully in Go, persists
// session state in memory or SQLite, and integrates cleanly into existing
// services.
//
// # Core Concepts
//
//  1. Engine
//  2. GraphBuilder
//  3. StageFunc
//  4. Worker
//  5. LocalRunner
//
// # Engine
//
// The Engine registers graph definitions, creates sessions, and walks each
// session's cursor through its graph. At every node boundary it persists a
// checkpoint - the accumulated snapshot plus the cursor - so a session can be
// resumed after a suspension, a cancellation, or a process crash.
//
// Engines can be backed by different storage:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//
// # GraphBuilder
//
// GraphBuilder provides the declarative API used to define pipelines:
//
//	graph := heimdall.NewGraph("equity-report").
//	    Stage("draft", draft).
//	    Stage("decide", decide).
//	    DecisionLoop("decide", "decision", "draft", "review").
//	    Gate("review").
//	    Stage("finalize", finalize).
//	    Edge("draft", "decide").
//	    Edge("review", "finalize").
//	    Edge("finalize", heimdall.Terminal)
//
// Static edges chain stages; conditional routes pick the successor from the
// snapshot. DecisionLoop installs the bounded accept/revise router: revise
// routes re-enter the loop until the session's iteration budget is spent,
// then the route is forced onward.
//
// # StageFunc
//
// A StageFunc is the unit of work at each node. It receives the current
// snapshot and returns a partial-update map that the engine merges and
// checkpoints:
//
//	type StageFunc func(ctx context.Context, snap *Snapshot) StageResult
//
// Stages reach external collaborators through the ResilientInvoker carried
// in the context, which applies retry with exponential backoff and a
// circuit breaker per dependency key.
//
// # Human Review
//
// Gate nodes suspend the session and park it as AWAITING_REVIEW. A reviewer
// approves as-is or submits a YAML feedback document whose entries patch the
// final report section by section; Resume applies the feedback and drives
// the session to completion. Resume is idempotent once the review outcome is
// settled.
//
// # Worker and LocalRunner
//
// The worker package consumes start-session and resume tasks from a queue,
// so sessions can be driven asynchronously and feedback can arrive from
// another process. LocalRunner bundles an in-memory engine, queue, and
// worker for development; NewSQLiteBundle wires the durable equivalents on
// one database.
//
// For complete programs, see the /examples directory.
package heimdall
