package reducer

import (
	"context"
	"fmt"
	"sync"
)

// ThreadLocker provides mutual exclusion per thread id. Locks for idle
// threads are released from the table.
type ThreadLocker struct {
	mu    sync.Mutex
	locks map[string]*threadMutex
}

type threadMutex struct {
	mu       sync.Mutex
	refCount int
}

// NewThreadLocker creates a ThreadLocker.
func NewThreadLocker() *ThreadLocker {
	return &ThreadLocker{locks: make(map[string]*threadMutex)}
}

// Lock blocks until the thread's lock is held or ctx is done. The returned
// unlock function must be called exactly once.
func (l *ThreadLocker) Lock(ctx context.Context, threadID string) (unlock func(), err error) {
	l.mu.Lock()
	tm, ok := l.locks[threadID]
	if !ok {
		tm = &threadMutex{}
		l.locks[threadID] = tm
	}
	tm.refCount++
	l.mu.Unlock()

	release := func() {
		tm.mu.Unlock()
		l.mu.Lock()
		tm.refCount--
		if tm.refCount == 0 {
			delete(l.locks, threadID)
		}
		l.mu.Unlock()
	}

	acquired := make(chan struct{})
	go func() {
		tm.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return release, nil
	case <-ctx.Done():
		// The goroutine still acquires eventually; hand the lock straight back.
		go func() {
			<-acquired
			release()
		}()
		return nil, fmt.Errorf("thread lock %s: %w", threadID, ctx.Err())
	}
}

// Held returns the number of threads with a held or pending lock.
func (l *ThreadLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
