package service

import "sync"

// BookLocks serialises mutations per book id across services sharing the instance.
type BookLocks struct {
	mu    sync.Mutex
	locks map[int64]*bookLock
}

type bookLock struct {
	mu   sync.Mutex
	refs int
}

// NewBookLocks constructs an empty lock table.
func NewBookLocks() *BookLocks {
	return &BookLocks{locks: make(map[int64]*bookLock)}
}

// Lock acquires the mutex for id and returns its release function.
func (l *BookLocks) Lock(id int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &bookLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
