package knowledge

import (
	"context"
	"sync"
)

// InMemoryStore is a Store backed by a per-subject chunk list. Safe for
// concurrent use.
type InMemoryStore struct {
	mu        sync.RWMutex
	bySubject map[string][]string
}

// NewInMemoryStore creates an empty in-memory knowledge store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		bySubject: make(map[string][]string),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Ingest(ctx context.Context, subject, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cs := chunks(text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject[subject] = append(s.bySubject[subject], cs...)
	return len(cs), nil
}

func (s *InMemoryStore) Query(ctx context.Context, subject, question string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	candidates := s.bySubject[subject]
	s.mu.RUnlock()

	return rank(candidates, question, limit), nil
}
