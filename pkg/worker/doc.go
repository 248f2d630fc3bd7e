// Package worker provides the background worker used to drive analysis
// sessions asynchronously.
//
// Workers consume tasks from a task queue and execute them against an
// engine: starting new sessions and delivering reviewer feedback to
// sessions parked at a review gate. They are lightweight, embeddable, and
// multiple workers can safely share a durable queue.
//
// # Task Handling
//
// A worker handles two task types:
//
//   - start-session: create a session for a subject and drive it until it
//     completes or suspends for review.
//   - resume: apply a reviewer's feedback document to a suspended session
//     and drive it to completion.
//
// Failed tasks are re-enqueued with a configurable backoff until their
// attempt budget is exhausted. Delivery is at-least-once: a redelivered
// start-session task continues the existing session instead of creating a
// duplicate.
//
// # Integration
//
// Workers are decoupled from any particular backend. The engine
// encapsulates session state and stage execution; the queue provides task
// delivery. In-memory and SQLite queue implementations ship with this
// module, and durable queues let feedback submitted before a process
// restart survive it.
//
// Most users should create workers through the heimdall package's runner
// and bundle helpers, which wire engines, queues, and observers together
// with sensible defaults.
package worker
