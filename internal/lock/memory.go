package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryPropertyLocker implements PropertyLocker in-process: one buffered
// slot per property. Sufficient for a single-instance deployment and as the
// failover fallback.
type MemoryPropertyLocker struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
	wait  time.Duration
}

func NewMemoryPropertyLocker(wait time.Duration) *MemoryPropertyLocker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &MemoryPropertyLocker{
		slots: make(map[int64]chan struct{}),
		wait:  wait,
	}
}

func (l *MemoryPropertyLocker) slot(propertyID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[propertyID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[propertyID] = ch
	}
	return ch
}

func (l *MemoryPropertyLocker) Acquire(ctx context.Context, propertyID int64) (Lease, error) {
	ch := l.slot(propertyID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return &memoryLease{ch: ch}, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type memoryLease struct {
	once sync.Once
	ch   chan struct{}
}

func (l *memoryLease) Release(_ context.Context) error {
	l.once.Do(func() { <-l.ch })
	return nil
}
