package workflow

import "sync"

// keyedMutex serializes advancement per workflow ID. Two concurrent Advance
// calls for the same ID would otherwise race on the read-modify-write of
// CurrentStepIndex and History and corrupt the append-only invariant.
//
// Entries are reference counted and removed once the last holder unlocks,
// so the map stays proportional to in-flight advancements rather than to
// every workflow ID the process has ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
