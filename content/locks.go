package content

import (
	"sync"

	"github.com/bobg/chunky"
)

// idLocks is a set of mutexes keyed by ChunkID.
// An entry exists only while some goroutine holds or awaits it.
type idLocks struct {
	mu sync.Mutex
	m  map[chunky.ChunkID]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

func newIDLocks() *idLocks {
	return &idLocks{m: make(map[chunky.ChunkID]*idLock)}
}

// lock acquires the mutex for id and returns the function that releases it.
func (l *idLocks) lock(id chunky.ChunkID) func() {
	l.mu.Lock()
	entry, ok := l.m[id]
	if !ok {
		entry = new(idLock)
		l.m[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

func (l *idLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
