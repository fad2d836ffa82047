package storage

import "sync"

// localLocks is an advisory lock table for backends without a lock server.
// It only excludes holders inside this process.
type localLocks struct {
	mu   sync.Mutex
	held map[int64]bool
}

func (l *localLocks) tryLock(key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false
	}
	if l.held == nil {
		l.held = make(map[int64]bool)
	}
	l.held[key] = true
	return true
}

func (l *localLocks) unlock(key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	held := l.held[key]
	delete(l.held, key)
	return held
}
