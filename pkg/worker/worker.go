package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/heimdall/internal/taskqueue"
	"github.com/petrijr/heimdall/pkg/api"
)

// Config tunes how the worker handles failing tasks.
type Config struct {
	// MaxAttempts is the total number of times a task is handed to the
	// engine before it is dropped with an error. Zero or negative means 1.
	MaxAttempts int

	// Backoff is the delay before a failed task becomes eligible again.
	// Delayed retries need a durable queue backend; the in-memory queue
	// redelivers immediately.
	Backoff time.Duration
}

// Worker pulls tasks from a Queue and executes them against an Engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	cfg    Config
}

// New creates a Worker with single-attempt task handling.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a Worker with the given retry configuration.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		engine: engine,
		queue:  queue,
		cfg:    cfg,
	}
}

// EnqueueStartSession enqueues a task to start an analysis session
// asynchronously. The session id is assigned here and returned so the caller
// can poll for status before the worker has picked the task up.
func (w *Worker) EnqueueStartSession(ctx context.Context, graphName, subject string) (string, error) {
	return w.EnqueueStartSessionWithOptions(ctx, graphName, subject, api.StartOptions{})
}

// EnqueueStartSessionWithOptions is EnqueueStartSession with per-session
// tuning. An explicit opts.SessionID is honored.
func (w *Worker) EnqueueStartSessionWithOptions(ctx context.Context, graphName, subject string, opts api.StartOptions) (string, error) {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	t := taskqueue.Task{
		ID:            uuid.NewString(),
		Type:          taskqueue.TaskTypeStartSession,
		GraphName:     graphName,
		Subject:       subject,
		SessionID:     sessionID,
		MaxIterations: opts.MaxIterations,
		EnqueuedAt:    time.Now(),
	}
	if err := w.queue.Enqueue(ctx, t); err != nil {
		return "", err
	}
	return sessionID, nil
}

// EnqueueResume enqueues reviewer feedback for a session parked at a review
// gate. The feedback document travels with the task and is applied by
// whichever worker processes it.
func (w *Worker) EnqueueResume(ctx context.Context, sessionID, feedback string) error {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeResume,
		SessionID:  sessionID,
		Feedback:   feedback,
		EnqueuedAt: time.Now(),
	}
	return w.queue.Enqueue(ctx, t)
}

// EnqueueResumeAt enqueues a resume task that becomes eligible no earlier
// than 'at'.
func (w *Worker) EnqueueResumeAt(ctx context.Context, sessionID, feedback string, at time.Time) error {
	t := taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeResume,
		SessionID:  sessionID,
		Feedback:   feedback,
		EnqueuedAt: time.Now(),
		NotBefore:  at,
	}
	return w.queue.Enqueue(ctx, t)
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (context cancelled or
//     dequeue failed).
//   - processed == true: a task was handled; err is non-nil only once the
//     task's attempts are exhausted. Earlier failures re-enqueue the task
//     with the configured backoff.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	handleErr := w.handle(ctx, task)
	if handleErr == nil {
		return true, nil
	}

	task.Attempts++
	if task.Attempts >= w.cfg.MaxAttempts {
		return true, fmt.Errorf("task %s (%s) exhausted %d attempt(s): %w",
			task.ID, task.Type, task.Attempts, handleErr)
	}

	retry := *task
	retry.NotBefore = time.Now().Add(w.cfg.Backoff)
	if err := w.queue.Enqueue(ctx, retry); err != nil {
		return true, fmt.Errorf("re-enqueue of task %s failed: %w", task.ID, err)
	}
	return true, nil
}

// runErrorBackoff paces the Run loop when the queue backend itself is
// failing, so a broken dequeue (closed DB, lost connection) does not spin.
const runErrorBackoff = 100 * time.Millisecond

// Run processes tasks until the context is cancelled. Task-level errors do
// not stop the loop; a failing dequeue pauses briefly before the next poll.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !processed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(runErrorBackoff):
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, task *taskqueue.Task) error {
	switch task.Type {
	case taskqueue.TaskTypeStartSession:
		_, err := w.engine.StartWithOptions(ctx, task.GraphName, task.Subject, api.StartOptions{
			SessionID:     task.SessionID,
			MaxIterations: task.MaxIterations,
		})
		// A redelivered task may find the session already created by an
		// earlier attempt; continuing from its checkpoint is the correct
		// at-least-once behavior.
		if errors.Is(err, api.ErrSessionExists) {
			_, err = w.engine.Continue(ctx, task.SessionID)
		}
		return err

	case taskqueue.TaskTypeResume:
		_, err := w.engine.Resume(ctx, task.SessionID, task.Feedback)
		return err

	default:
		return errors.New("unknown task type: " + string(task.Type))
	}
}
