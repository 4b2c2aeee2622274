package cart

import "sync"

// lineLocks serializes work per key. Entries are reference counted and dropped
// once nobody holds or waits on them.
type lineLocks struct {
	mu    sync.Mutex
	locks map[string]*lineLock
}

type lineLock struct {
	mu   sync.Mutex
	refs int
}

func newLineLocks() *lineLocks {
	return &lineLocks{locks: map[string]*lineLock{}}
}

func lineKey(cartID, productID string) string {
	return cartID + "/" + productID
}

// Lock blocks until key is free and returns the matching unlock.
func (l *lineLocks) Lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lineLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *lineLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
