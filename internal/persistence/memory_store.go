package persistence

import (
	"sync"
	"time"

	"github.com/petrijr/heimdall/pkg/api"
)

// InMemoryStore is a goroutine-safe CheckpointStore backed by a map.
// It is non-durable and intended for tests and local development.
type InMemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*api.Checkpoint
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		checkpoints: make(map[string]*api.Checkpoint),
	}
}

var _ CheckpointStore = (*InMemoryStore)(nil)

// clone copies a checkpoint so the store never shares mutable state with
// callers.
func clone(cp *api.Checkpoint) *api.Checkpoint {
	out := *cp
	out.Snapshot = cp.Snapshot.Clone()
	return &out
}

func (s *InMemoryStore) SaveCheckpoint(cp *api.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkpoints[cp.Session.ID]; ok {
		return ErrCheckpointExists
	}
	stored := clone(cp)
	stored.UpdatedAt = time.Now()
	s.checkpoints[cp.Session.ID] = stored
	return nil
}

func (s *InMemoryStore) UpdateCheckpoint(cp *api.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkpoints[cp.Session.ID]; !ok {
		return ErrCheckpointNotFound
	}
	stored := clone(cp)
	stored.UpdatedAt = time.Now()
	s.checkpoints[cp.Session.ID] = stored
	return nil
}

func (s *InMemoryStore) GetCheckpoint(sessionID string) (*api.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[sessionID]
	if !ok {
		return nil, ErrCheckpointNotFound
	}
	return clone(cp), nil
}

func (s *InMemoryStore) ListCheckpoints(filter CheckpointFilter) ([]*api.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Checkpoint
	for _, cp := range s.checkpoints {
		if filter.GraphName != "" && cp.Session.GraphName != filter.GraphName {
			continue
		}
		if filter.State != "" && cp.State != filter.State {
			continue
		}
		result = append(result, clone(cp))
	}
	return result, nil
}

func (s *InMemoryStore) DeleteCheckpoint(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, sessionID)
	return nil
}
