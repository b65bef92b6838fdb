package scheduler

import (
	"context"
	"sync"
)

// sourceLocks is a keyed mutex: one lock per source tag.
type sourceLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newSourceLocks() *sourceLocks {
	return &sourceLocks{locks: make(map[string]chan struct{})}
}

func (l *sourceLocks) get(source string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[source]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[source] = ch
	}
	return ch
}

// lock blocks until source is free or ctx ends.
func (l *sourceLocks) lock(ctx context.Context, source string) error {
	select {
	case l.get(source) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryLock takes the lock of source if it is free.
func (l *sourceLocks) tryLock(source string) bool {
	select {
	case l.get(source) <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *sourceLocks) unlock(source string) {
	<-l.get(source)
}

// held returns true if a run of source is in progress.
func (l *sourceLocks) held(source string) bool {
	return len(l.get(source)) > 0
}
