package heimdall

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/petrijr/heimdall/internal/taskqueue"
	"github.com/petrijr/heimdall/pkg/worker"
)

// LocalRunner bundles an in-memory Engine, an in-memory task queue, and a
// Worker into a simple "local runner" for development and debugging.
//
// Typical usage:
//
//	runner := heimdall.NewLocalRunner()
//	graph := heimdall.NewGraph("equity-report"). ...
//	graph.MustRegister(runner.Engine)
//
//	// Synchronous run (no queue/worker involved):
//	st, err := heimdall.Start(ctx, runner.Engine, graph.Name(), "ACME Corp")
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	id, _ := runner.StartSessionAsync(ctx, graph.Name(), "ACME Corp")
//	...
//	runner.Stop()
type LocalRunner struct {
	// Engine is the in-memory engine used by this runner.
	Engine Engine

	// Queue is the in-memory task queue used by the Worker.
	Queue taskqueue.Queue

	// Worker processes tasks from Queue using Engine.
	Worker *worker.Worker

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory engine,
// in-memory queue, and a Worker with default config.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner() *LocalRunner {
	eng := NewInMemoryEngine()
	q := taskqueue.NewInMemoryQueue(1024)
	w := worker.New(eng, q)

	return &LocalRunner{
		Engine: eng,
		Queue:  q,
		Worker: w,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("heimdall: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// For the local runner, cancellation is a clean shutdown.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Log and keep going so a single bad task doesn't kill
					// the worker loop.
					log.Printf("heimdall: local runner worker error: %v", err)
					continue
				}
				if !processed {
					continue
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartSessionAsync enqueues a task to start a session asynchronously and
// returns the pre-assigned session id. The graph must already be registered
// on LocalRunner.Engine.
func (r *LocalRunner) StartSessionAsync(ctx context.Context, graphName, subject string) (string, error) {
	return r.Worker.EnqueueStartSession(ctx, graphName, subject)
}

// ResumeAsync enqueues reviewer feedback for a suspended session. The
// feedback is applied when a worker picks up the task.
func (r *LocalRunner) ResumeAsync(ctx context.Context, sessionID, feedback string) error {
	return r.Worker.EnqueueResume(ctx, sessionID, feedback)
}
