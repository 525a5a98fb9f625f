package reconcile

import "sync"

// lease serializes mutations per loan id. Entries are reference-counted so
// the map does not grow with every loan ever touched.
type lease struct {
	mu   sync.Mutex
	held map[string]*leaseEntry
}

type leaseEntry struct {
	mu   sync.Mutex
	refs int
}

func newLease() *lease {
	return &lease{held: map[string]*leaseEntry{}}
}

func (l *lease) acquire(key string) {
	l.mu.Lock()
	e, ok := l.held[key]
	if !ok {
		e = &leaseEntry{}
		l.held[key] = e
	}
	e.refs++
	l.mu.Unlock()
	e.mu.Lock()
}

func (l *lease) release(key string) {
	l.mu.Lock()
	e, ok := l.held[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.held, key)
	}
	l.mu.Unlock()
	e.mu.Unlock()
}
