package engine

import (
	"fmt"
	"sync"

	"github.com/petrijr/heimdall/pkg/api"
)

type graphRegistry struct {
	mu     sync.RWMutex
	byName map[string]api.GraphDefinition
}

func newGraphRegistry() *graphRegistry {
	return &graphRegistry{
		byName: make(map[string]api.GraphDefinition),
	}
}

func (r *graphRegistry) Register(def api.GraphDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("graph already registered: %s", def.Name)
	}
	r.byName[def.Name] = def
	return nil
}

func (r *graphRegistry) Get(name string) (api.GraphDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byName[name]
	if !ok {
		return api.GraphDefinition{}, fmt.Errorf("unknown graph: %s", name)
	}
	return def, nil
}
