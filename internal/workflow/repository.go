package workflow

import (
	"sort"
	"sync"
)

// Repository is the in-process cache of active workflow instances. It is
// injected into the Manager rather than held as package state, so its
// lifecycle matches the service: created at start, discarded at shutdown.
type Repository interface {
	// Get returns the cached workflow for id, if present.
	Get(id string) (*Workflow, bool)

	// Put caches or replaces the workflow under its ID.
	Put(w *Workflow)

	// List returns all cached workflows ordered by creation time.
	List() []*Workflow
}

// memoryRepository is the default map-backed Repository.
type memoryRepository struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		workflows: make(map[string]*Workflow),
	}
}

func (r *memoryRepository) Get(id string) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[id]
	return w, ok
}

func (r *memoryRepository) Put(w *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[w.ID] = w
}

func (r *memoryRepository) List() []*Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Workflow, 0, len(r.workflows))
	for _, w := range r.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
