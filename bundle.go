package heimdall

import (
	"database/sql"

	"github.com/petrijr/heimdall/internal/taskqueue"
	workerpkg "github.com/petrijr/heimdall/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker

	// queue is kept unexported; it is primarily useful for internal
	// inspection and tests. The public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs a durable Engine + Queue + Worker combo sharing
// the same SQLite database. Session checkpoints and queued tasks are
// persisted in the provided *sql.DB, so suspended sessions and pending
// feedback survive process restarts.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:heimdall.db?_journal=WAL")
//	bundle, err := heimdall.NewSQLiteBundle(db, worker.Config{MaxAttempts: 3})
//	// register graphs on bundle.Engine
//	// enqueue work via bundle.Worker
func NewSQLiteBundle(db *sql.DB, cfg workerpkg.Config) (*WorkerBundle, error) {
	eng, err := NewSQLiteEngine(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	w := workerpkg.NewWithConfig(eng, q, cfg)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		queue:  q,
	}, nil
}
