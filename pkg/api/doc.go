// Package api contains the core building blocks used by the heimdall
// orchestration engine. It provides the low-level primitives for defining
// pipeline graphs, carrying session state between stages, and observing
// engine behavior.
//
// Most users interact with the higher-level heimdall package, which
// re-exports selected types and helpers from this package. The api package
// is intended for advanced use cases, custom integrations, or contributors
// extending the engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Graph definitions
//   - Stages and stage functions
//   - Snapshots and checkpoints
//   - Observability
//
// # Graph Definitions
//
// A GraphDefinition describes the structure of a pipeline: named stage
// nodes, static edges, and conditional routers that pick the next node from
// the accumulated snapshot. Definitions are immutable once constructed and
// are registered with an engine before a session can be started. Validation
// happens at construction time: every router's possible outputs are declared
// and checked against the node set, so an undefined route is a build error,
// not a runtime surprise.
//
// # Stages and Stage Functions
//
// A StageFunc is the fundamental executable unit of a pipeline:
//
//	type StageFunc func(ctx context.Context, snap *Snapshot) StageResult
//
// Stages read the snapshot plus whatever they fetch from external
// collaborators, and return either a partial-update map that is merged
// shallowly into the snapshot, or an error marker. Non-fatal errors degrade
// the session (they are recorded and routing continues); fatal errors abort
// it. External calls made inside a stage should go through the resilience
// package so transient failures are retried and repeat offenders trip a
// circuit breaker.
//
// # Snapshots and Checkpoints
//
// A Snapshot is the accumulating record threaded through all stages of a
// session: named report fields, an append-only message log, and the
// iteration counters that bound the decision loop. A Checkpoint pairs a
// snapshot with the cursor naming the next node to execute; the engine
// persists one at every node boundary, which is what makes crash recovery
// and human-review suspend/resume possible.
//
// # Observability
//
// The Observer interface receives session and stage lifecycle callbacks.
// Ready-made implementations cover structured logging (log/slog), basic
// in-memory metrics, and composition of multiple observers.
package api
