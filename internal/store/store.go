// Package store adapts the external knowledge store the engine persists to.
//
// The engine treats the store as an at-least-once, possibly-unavailable
// category/key document store. Two implementations are provided: an in-memory
// store for tests and store-less operation, and a NATS JetStream key-value
// store for durable deployments.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Categories used by the engine.
const (
	CategoryWorkflows  = "workflows"
	CategoryReferences = "cross_stage_references"
	CategoryDecisions  = "decisions"
)

// ErrNotFound is returned by Get when no value exists under the key.
var ErrNotFound = errors.New("store: key not found")

// Store is the contract the engine requires from the external knowledge store.
//
// Put is an idempotent upsert; repeated writes with the same category/key
// replace the stored value (last write wins). Values are opaque structured
// documents, marshaled to JSON at the boundary.
type Store interface {
	// Put upserts value under category/key.
	Put(ctx context.Context, category, key string, value any) error

	// Get returns the raw value stored under category/key, or ErrNotFound.
	Get(ctx context.Context, category, key string) (json.RawMessage, error)

	// GetAll returns every key/value pair in a category. A missing category
	// yields an empty map, not an error.
	GetAll(ctx context.Context, category string) (map[string]json.RawMessage, error)
}

// GetInto is a convenience that unmarshals the value at category/key into out.
func GetInto(ctx context.Context, s Store, category, key string, out any) error {
	raw, err := s.Get(ctx, category, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
