package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/heimdall/internal/persistence"
	"github.com/petrijr/heimdall/pkg/api"
	"github.com/petrijr/heimdall/pkg/resilience"
)

// defaultMaxIterations bounds the decision loop for sessions that do not
// set their own budget.
const defaultMaxIterations = 3

// Config collects the collaborators of an engine instance.
type Config struct {
	// Checkpoints is the durable (snapshot, cursor) store. Required.
	Checkpoints persistence.CheckpointStore

	// Observer receives lifecycle callbacks. Nil means NoopObserver.
	Observer api.Observer

	// Invoker guards external calls made by stages. Nil means the default
	// retry policy and breaker settings.
	Invoker *resilience.Invoker

	// DefaultMaxIterations is the revision budget applied when StartOptions
	// does not set one. Zero means 3.
	DefaultMaxIterations int
}

type engineImpl struct {
	graphs      *graphRegistry
	checkpoints persistence.CheckpointStore
	observer    api.Observer
	invoker     *resilience.Invoker

	defaultMaxIterations int
}

var _ api.Engine = (*engineImpl)(nil)

// NewEngine creates an engine from an explicit Config.
func NewEngine(cfg Config) (api.Engine, error) {
	if cfg.Checkpoints == nil {
		return nil, errors.New("engine config: checkpoint store is required")
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.Invoker == nil {
		cfg.Invoker = resilience.NewDefaultInvoker()
	}
	if cfg.DefaultMaxIterations <= 0 {
		cfg.DefaultMaxIterations = defaultMaxIterations
	}
	return &engineImpl{
		graphs:               newGraphRegistry(),
		checkpoints:          cfg.Checkpoints,
		observer:             cfg.Observer,
		invoker:              cfg.Invoker,
		defaultMaxIterations: cfg.DefaultMaxIterations,
	}, nil
}

// NewInMemoryEngine creates an engine whose checkpoints live in process
// memory. Suitable for tests and embedded single-process use.
func NewInMemoryEngine() api.Engine {
	e, _ := NewEngine(Config{Checkpoints: persistence.NewInMemoryStore()})
	return e
}

// NewInMemoryEngineWithObserver is NewInMemoryEngine with an observer.
func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	e, _ := NewEngine(Config{
		Checkpoints: persistence.NewInMemoryStore(),
		Observer:    obs,
	})
	return e
}

// NewInMemoryEngineWithConfig creates an in-memory engine with the given
// collaborators; the Checkpoints field is ignored.
func NewInMemoryEngineWithConfig(cfg Config) api.Engine {
	cfg.Checkpoints = persistence.NewInMemoryStore()
	e, _ := NewEngine(cfg)
	return e
}

// NewSQLiteEngine creates an engine with SQLite-backed checkpoints, so
// sessions survive process restarts.
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	store, err := persistence.NewSQLiteCheckpointStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(Config{Checkpoints: store})
}

// NewSQLiteEngineWithConfig is NewSQLiteEngine with explicit collaborators;
// the Checkpoints field is ignored.
func NewSQLiteEngineWithConfig(db *sql.DB, cfg Config) (api.Engine, error) {
	store, err := persistence.NewSQLiteCheckpointStore(db)
	if err != nil {
		return nil, err
	}
	cfg.Checkpoints = store
	return NewEngine(cfg)
}

// NewSQLiteEngineWithObserver is NewSQLiteEngine with an observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewSQLiteCheckpointStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(Config{Checkpoints: store, Observer: obs})
}

func (e *engineImpl) RegisterGraph(def api.GraphDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	return e.graphs.Register(def)
}

func (e *engineImpl) Start(ctx context.Context, graphName, subject string) (*api.SessionStatus, error) {
	return e.StartWithOptions(ctx, graphName, subject, api.StartOptions{})
}

func (e *engineImpl) StartWithOptions(ctx context.Context, graphName, subject string, opts api.StartOptions) (*api.SessionStatus, error) {
	def, err := e.graphs.Get(graphName)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		return nil, errors.New("subject is required")
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = e.defaultMaxIterations
	}
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	snap := api.NewSnapshot(maxIter)
	snap.Merge(map[string]string{api.FieldSubject: subject})
	snap.Append(def.Entry, "session started for %s", subject)

	cp := &api.Checkpoint{
		Session: api.AnalysisSession{
			ID:        id,
			Subject:   subject,
			GraphName: graphName,
			CreatedAt: time.Now(),
		},
		State:    api.StatePending,
		Cursor:   def.Entry,
		Snapshot: snap,
	}
	if err := e.checkpoints.SaveCheckpoint(cp); err != nil {
		if errors.Is(err, persistence.ErrCheckpointExists) {
			return nil, fmt.Errorf("%w: %s", api.ErrSessionExists, id)
		}
		return nil, err
	}

	e.observer.OnSessionStart(ctx, statusOf(cp))
	return e.drive(ctx, def, cp)
}

// drive walks the cursor through the graph, persisting a checkpoint at
// every node boundary, until the session completes, fails, suspends at a
// gate, or the context is cancelled. Cancellation is only observed between
// nodes, so the last checkpoint always reflects a fully applied stage.
func (e *engineImpl) drive(ctx context.Context, def api.GraphDefinition, cp *api.Checkpoint) (*api.SessionStatus, error) {
	// A freshly created session stays PENDING until the walk begins.
	cp.State = api.StateRunning

	for {
		if cp.Cursor == api.Terminal {
			cp.State = api.StateCompleted
			if err := e.checkpoints.UpdateCheckpoint(cp); err != nil {
				return statusOf(cp), err
			}
			st := statusOf(cp)
			e.observer.OnSessionCompleted(ctx, st)
			return st, nil
		}

		if err := ctx.Err(); err != nil {
			return statusOf(cp), err
		}

		node, ok := def.Node(cp.Cursor)
		if !ok {
			return e.fail(ctx, cp, fmt.Errorf("graph %s: cursor names unknown node %q", def.Name, cp.Cursor))
		}

		if node.Gate {
			return e.suspend(ctx, cp, node.Name)
		}

		res := e.invokeStage(ctx, node, cp)
		if res.Err != nil {
			if res.Err.Fatal {
				cp.Snapshot.Append(node.Name, "fatal: %s", res.Err.Message)
				return e.fail(ctx, cp, res.Err)
			}
			cp.Snapshot.Merge(map[string]string{api.FieldError: res.Err.Error()})
			cp.Snapshot.Append(node.Name, "stage failed, continuing degraded: %s", res.Err.Message)
		} else {
			cp.Snapshot.Merge(res.Updates)
		}

		next, loop, err := def.Next(cp.Cursor, cp.Snapshot)
		if err != nil {
			return e.fail(ctx, cp, err)
		}
		if loop && cp.Snapshot.IterationCount < cp.Snapshot.MaxIterations {
			cp.Snapshot.IterationCount++
			cp.Snapshot.Append(node.Name, "revision %d of %d requested",
				cp.Snapshot.IterationCount, cp.Snapshot.MaxIterations)
		}

		cp.Cursor = next
		if err := e.checkpoints.UpdateCheckpoint(cp); err != nil {
			return statusOf(cp), err
		}
	}
}

// invokeStage runs one stage function against a clone of the snapshot, so a
// misbehaving stage cannot bypass the partial-update contract. Panics are
// converted into fatal stage errors.
func (e *engineImpl) invokeStage(ctx context.Context, node api.StageNode, cp *api.Checkpoint) (res api.StageResult) {
	st := statusOf(cp)
	stageCtx := resilience.WithInvoker(api.WithEngine(ctx, e), e.invoker)
	start := time.Now()

	e.observer.OnStageStart(stageCtx, st, node.Name)
	defer func() {
		if r := recover(); r != nil {
			res = api.FatalResult(node.Name, fmt.Errorf("panic: %v", r))
		}
		var err error
		if res.Err != nil {
			err = res.Err
		}
		e.observer.OnStageCompleted(stageCtx, st, node.Name, err, time.Since(start))
	}()

	return node.Fn(stageCtx, cp.Snapshot.Clone())
}

func (e *engineImpl) suspend(ctx context.Context, cp *api.Checkpoint, gate string) (*api.SessionStatus, error) {
	if !cp.Snapshot.ReviewState.Terminal() {
		cp.Snapshot.ReviewState = api.ReviewPending
		cp.Snapshot.Append(gate, "awaiting human review")
	}
	cp.State = api.StateAwaitingReview
	if err := e.checkpoints.UpdateCheckpoint(cp); err != nil {
		return statusOf(cp), err
	}
	st := statusOf(cp)
	e.observer.OnSessionSuspended(ctx, st, gate)
	return st, nil
}

func (e *engineImpl) fail(ctx context.Context, cp *api.Checkpoint, cause error) (*api.SessionStatus, error) {
	cp.State = api.StateFailed
	// Best effort: the failure itself is what the caller needs to see.
	_ = e.checkpoints.UpdateCheckpoint(cp)
	st := statusOf(cp)
	e.observer.OnSessionFailed(ctx, st, cause)
	return st, cause
}

func (e *engineImpl) Resume(ctx context.Context, sessionID string, feedback string) (*api.SessionStatus, error) {
	cp, err := e.load(sessionID)
	if err != nil {
		return nil, err
	}

	// Idempotence: once the review outcome is settled a second Resume is a
	// read, not a write. No double-patching.
	if cp.Snapshot.ReviewState.Terminal() {
		return statusOf(cp), nil
	}

	def, err := e.graphs.Get(cp.Session.GraphName)
	if err != nil {
		return nil, err
	}
	if !def.IsGate(cp.Cursor) {
		return nil, fmt.Errorf("session %s at node %s: %w", sessionID, cp.Cursor, api.ErrResumeStateMismatch)
	}
	gate := cp.Cursor

	patches, perr := parseFeedback(feedback)
	if perr != nil {
		cp.Snapshot.Append(gate, "malformed feedback ignored, approving as-is: %v", perr)
		patches = nil
	}

	if len(patches) == 0 {
		cp.Snapshot.ReviewState = api.ReviewApproved
		cp.Snapshot.Append(gate, "approved without changes")
	} else {
		applyFeedback(cp.Snapshot, patches)
		cp.Snapshot.ReviewState = api.ReviewChangesApplied
		cp.Snapshot.Append(gate, "applied %d feedback section(s)", len(patches))
	}

	next, _, err := def.Next(gate, cp.Snapshot)
	if err != nil {
		return e.fail(ctx, cp, err)
	}
	cp.Cursor = next
	cp.State = api.StateRunning
	if err := e.checkpoints.UpdateCheckpoint(cp); err != nil {
		return statusOf(cp), err
	}

	e.observer.OnSessionResumed(ctx, statusOf(cp), gate)
	return e.drive(ctx, def, cp)
}

func (e *engineImpl) Continue(ctx context.Context, sessionID string) (*api.SessionStatus, error) {
	cp, err := e.load(sessionID)
	if err != nil {
		return nil, err
	}

	switch cp.State {
	case api.StateCompleted, api.StateFailed:
		return statusOf(cp), fmt.Errorf("session %s is %s and cannot be continued", sessionID, cp.State)
	case api.StateAwaitingReview:
		return statusOf(cp), fmt.Errorf("session %s is awaiting review; use Resume", sessionID)
	}

	def, err := e.graphs.Get(cp.Session.GraphName)
	if err != nil {
		return nil, err
	}
	return e.drive(ctx, def, cp)
}

func (e *engineImpl) Status(ctx context.Context, sessionID string) (*api.SessionStatus, error) {
	cp, err := e.load(sessionID)
	if err != nil {
		return nil, err
	}
	return statusOf(cp), nil
}

func (e *engineImpl) Snapshot(ctx context.Context, sessionID string) (*api.Snapshot, error) {
	cp, err := e.load(sessionID)
	if err != nil {
		return nil, err
	}
	return cp.Snapshot.Clone(), nil
}

func (e *engineImpl) ListSessions(ctx context.Context, opts api.SessionListOptions) ([]*api.SessionStatus, error) {
	cps, err := e.checkpoints.ListCheckpoints(persistence.CheckpointFilter{
		GraphName: opts.GraphName,
		State:     opts.State,
	})
	if err != nil {
		return nil, err
	}
	statuses := make([]*api.SessionStatus, 0, len(cps))
	for _, cp := range cps {
		statuses = append(statuses, statusOf(cp))
	}
	return statuses, nil
}

func (e *engineImpl) RecoverStuckSessions(ctx context.Context) (int, error) {
	cps, err := e.checkpoints.ListCheckpoints(persistence.CheckpointFilter{
		State: api.StateRunning,
	})
	if err != nil {
		return 0, err
	}
	// A crash between checkpoint creation and the first node boundary leaves
	// a PENDING checkpoint; those sessions are just as stuck.
	pending, err := e.checkpoints.ListCheckpoints(persistence.CheckpointFilter{
		State: api.StatePending,
	})
	if err != nil {
		return 0, err
	}
	cps = append(cps, pending...)

	driven := 0
	var errs []error
	for _, cp := range cps {
		def, err := e.graphs.Get(cp.Session.GraphName)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", cp.Session.ID, err))
			continue
		}
		// A session failing during recovery is its own outcome, already
		// persisted and observed; it still counts as driven.
		if _, err := e.drive(ctx, def, cp); err != nil && ctx.Err() != nil {
			return driven, err
		}
		driven++
	}
	return driven, errors.Join(errs...)
}

func (e *engineImpl) load(sessionID string) (*api.Checkpoint, error) {
	cp, err := e.checkpoints.GetCheckpoint(sessionID)
	if err != nil {
		if errors.Is(err, persistence.ErrCheckpointNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	return cp, nil
}

func statusOf(cp *api.Checkpoint) *api.SessionStatus {
	return &api.SessionStatus{
		SessionID:      cp.Session.ID,
		Subject:        cp.Session.Subject,
		GraphName:      cp.Session.GraphName,
		State:          cp.State,
		Cursor:         cp.Cursor,
		ReviewState:    cp.Snapshot.ReviewState,
		IterationCount: cp.Snapshot.IterationCount,
		MaxIterations:  cp.Snapshot.MaxIterations,
		FieldNames:     cp.Snapshot.FieldNames(),
		CreatedAt:      cp.Session.CreatedAt,
		UpdatedAt:      cp.UpdatedAt,
	}
}
