package workflow

import "sync"

// runLocks is a keyed mutual exclusion table: at most one run per event at a
// time, acquired without blocking so a second caller fails fast.
type runLocks struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunLocks() *runLocks {
	return &runLocks{active: make(map[string]struct{})}
}

func (l *runLocks) acquire(eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.active[eventID]; held {
		return false
	}
	l.active[eventID] = struct{}{}
	return true
}

func (l *runLocks) release(eventID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, eventID)
}

func (l *runLocks) held(eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, held := l.active[eventID]
	return held
}
