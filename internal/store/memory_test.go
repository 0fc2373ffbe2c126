package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.Put(ctx, CategoryWorkflows, "wf-1", map[string]string{"name": "test"})
	require.NoError(t, err)

	raw, err := m.Get(ctx, CategoryWorkflows, "wf-1")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "test", got["name"])
}

func TestMemory_GetMissing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Get(ctx, CategoryWorkflows, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = m.Put(ctx, CategoryWorkflows, "wf-1", "value")
	require.NoError(t, err)

	_, err = m.Get(ctx, CategoryWorkflows, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_PutOverwrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, CategoryReferences, "key", "first"))
	require.NoError(t, m.Put(ctx, CategoryReferences, "key", "second"))

	assert.Equal(t, 1, m.Len(CategoryReferences))

	var got string
	require.NoError(t, GetInto(ctx, m, CategoryReferences, "key", &got))
	assert.Equal(t, "second", got)
}

func TestMemory_GetAll(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, CategoryDecisions, "d1", "one"))
	require.NoError(t, m.Put(ctx, CategoryDecisions, "d2", "two"))

	all, err := m.GetAll(ctx, CategoryDecisions)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Unknown category is empty, not an error.
	empty, err := m.GetAll(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetInto_UnmarshalsValue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	type doc struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}

	require.NoError(t, m.Put(ctx, CategoryWorkflows, "wf", doc{ID: "wf", Count: 3}))

	var got doc
	require.NoError(t, GetInto(ctx, m, CategoryWorkflows, "wf", &got))
	assert.Equal(t, doc{ID: "wf", Count: 3}, got)
}
