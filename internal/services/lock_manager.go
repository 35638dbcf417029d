// internal/services/lock_manager.go
package services

import "sync"

// LockManager hands out one mutex per key, typically a project ID.
// An entry lives only while a caller holds or waits for it.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]*lockEntry)}
}

// WithLock runs fn while holding the lock for key and returns its error.
func (lm *LockManager) WithLock(key string, fn func() error) error {
	lm.mu.Lock()
	entry, ok := lm.locks[key]
	if !ok {
		entry = &lockEntry{}
		lm.locks[key] = entry
	}
	entry.refs++
	lm.mu.Unlock()

	entry.mu.Lock()
	defer lm.release(key, entry)
	return fn()
}

func (lm *LockManager) release(key string, entry *lockEntry) {
	entry.mu.Unlock()

	lm.mu.Lock()
	defer lm.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(lm.locks, key)
	}
}

// Len is the number of keys currently held or awaited.
func (lm *LockManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}
