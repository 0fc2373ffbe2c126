package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is a concurrent in-memory Store.
//
// Used for tests and for running the engine without an external store.
// Contents do not survive process restart.
type Memory struct {
	mu         sync.RWMutex
	categories map[string]map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		categories: make(map[string]map[string]json.RawMessage),
	}
}

// Put upserts value under category/key.
func (m *Memory) Put(_ context.Context, category, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s/%s: %w", category, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cat, ok := m.categories[category]
	if !ok {
		cat = make(map[string]json.RawMessage)
		m.categories[category] = cat
	}
	cat[key] = data
	return nil
}

// Get returns the value stored under category/key, or ErrNotFound.
func (m *Memory) Get(_ context.Context, category, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cat, ok := m.categories[category]
	if !ok {
		return nil, ErrNotFound
	}
	raw, ok := cat[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}

// GetAll returns a copy of every key/value pair in a category.
func (m *Memory) GetAll(_ context.Context, category string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cat, ok := m.categories[category]
	if !ok {
		return map[string]json.RawMessage{}, nil
	}
	out := make(map[string]json.RawMessage, len(cat))
	for k, v := range cat {
		raw := make(json.RawMessage, len(v))
		copy(raw, v)
		out[k] = raw
	}
	return out, nil
}

// Len reports the number of entries in a category.
func (m *Memory) Len(category string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.categories[category])
}
