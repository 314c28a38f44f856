package depman

import (
	"sync"

	"github.com/junioryono/depman/internal/pool"
)

// teardownList holds persistent objects whose thread has already ended.
// They are released when the registry closes.
type teardownList struct {
	entries []pool.Entry
	mu      sync.Mutex
}

func newTeardownList() *teardownList {
	return &teardownList{
		entries: make([]pool.Entry, 0),
	}
}

// track adds entries to be released at registry teardown.
func (l *teardownList) track(entries ...pool.Entry) {
	if len(entries) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entries...)
}

// len returns the number of tracked entries.
func (l *teardownList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// dispose releases all tracked entries in reverse order (LIFO). A value
// tracked more than once is released once.
func (l *teardownList) dispose(release pool.ReleaseFunc) []error {
	l.mu.Lock()
	entries := l.entries
	l.entries = nil
	l.mu.Unlock()

	if err := pool.ReleaseAll(entries, release); err != nil {
		return []error{err}
	}
	return nil
}
