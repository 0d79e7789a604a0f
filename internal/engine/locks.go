package engine

import "sync"

type roomMutex struct {
	mu   sync.Mutex
	refs int
}

// roomLocks serializes mutations per room so every check-and-mutate sequence
// observes committed state. Entries are dropped once the last holder leaves.
type roomLocks struct {
	mu    sync.Mutex
	locks map[string]*roomMutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: map[string]*roomMutex{}}
}

func (l *roomLocks) lock(roomID string) {
	l.mu.Lock()
	m := l.locks[roomID]
	if m == nil {
		m = &roomMutex{}
		l.locks[roomID] = m
	}
	m.refs++
	l.mu.Unlock()
	m.mu.Lock()
}

func (l *roomLocks) unlock(roomID string) {
	l.mu.Lock()
	m := l.locks[roomID]
	l.mu.Unlock()
	if m == nil {
		return
	}
	m.mu.Unlock()
	l.mu.Lock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, roomID)
	}
	l.mu.Unlock()
}
