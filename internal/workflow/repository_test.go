package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_GetPut(t *testing.T) {
	repo := NewMemoryRepository()

	_, ok := repo.Get("missing")
	assert.False(t, ok)

	repo.Put(&Workflow{ID: "wf-1", Name: "first"})
	w, ok := repo.Get("wf-1")
	require.True(t, ok)
	assert.Equal(t, "first", w.Name)

	repo.Put(&Workflow{ID: "wf-1", Name: "replaced"})
	w, _ = repo.Get("wf-1")
	assert.Equal(t, "replaced", w.Name)
}

func TestMemoryRepository_ListOrdered(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Now()

	repo.Put(&Workflow{ID: "b", CreatedAt: base.Add(time.Minute)})
	repo.Put(&Workflow{ID: "a", CreatedAt: base})
	repo.Put(&Workflow{ID: "c", CreatedAt: base.Add(time.Minute)})

	ws := repo.List()
	require.Len(t, ws, 3)
	assert.Equal(t, "a", ws[0].ID)
	assert.Equal(t, "b", ws[1].ID)
	assert.Equal(t, "c", ws[2].ID)
}

func TestKeyedMutex_DistinctKeysIndependent(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.lock("a")
	// A different key must not block.
	done := make(chan struct{})
	go func() {
		unlockB := km.lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on distinct key blocked")
	}
	unlockA()
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.lock("a")
	unlockB := km.lock("b")

	// A waiter keeps the entry alive until it unlocks too.
	done := make(chan struct{})
	go func() {
		unlock := km.lock("a")
		unlock()
		close(done)
	}()

	unlockA()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	unlockB()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
