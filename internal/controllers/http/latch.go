package http

import "sync"

// itemLatch marks cart items with a mutation in flight. It is best-effort:
// it only covers requests served by this process.
type itemLatch struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func newItemLatch() *itemLatch {
	return &itemLatch{busy: make(map[string]struct{})}
}

func (l *itemLatch) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.busy[key]; ok {
		return false
	}
	l.busy[key] = struct{}{}
	return true
}

func (l *itemLatch) release(key string) {
	l.mu.Lock()
	delete(l.busy, key)
	l.mu.Unlock()
}
