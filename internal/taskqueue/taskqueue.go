package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	TaskTypeStartSession TaskType = "start-session"
	TaskTypeResume       TaskType = "resume"
)

// Task represents one unit of work for the worker: either starting an
// analysis session or resuming one that is awaiting review. All fields are
// plain values so every backend can store them as typed columns.
type Task struct {
	ID   string
	Type TaskType

	// For start-session tasks.
	GraphName     string
	Subject       string
	MaxIterations int

	// SessionID identifies the session: the pre-assigned id for
	// start-session tasks, the target session for resume tasks.
	SessionID string

	// Feedback carries the reviewer's YAML document for resume tasks.
	Feedback string

	// Attempts counts how many times this task has already been handed to
	// the worker.
	Attempts int

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task is eligible for processing.
	// Zero means "immediately".
	NotBefore time.Time
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until one
	// is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
