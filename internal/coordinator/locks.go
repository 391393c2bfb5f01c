package coordinator

import "sync"

// keyedMutex provides per-key mutual exclusion. The coordinator serializes
// mutations per workflow and per escalation with it, so the stage machine
// and the escalation engine never see interleaved writes for one entity.
// Optimistic versions in the store remain the backstop for multi-process
// deployments.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*entityLock)}
}

// Lock acquires the mutex for key and returns its unlock function. Entries
// are reference-counted and removed when the last holder unlocks, so the
// map does not grow with every entity ever touched.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &entityLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
