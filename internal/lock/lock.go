// Package lock provides per-property mutual exclusion for calendar writers.
// One writer per property-range at a time; unrelated properties never
// contend. The locking primitive is pluggable: Redis for multi-instance
// deployments, in-process for single-instance and as failover fallback.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout means the bounded wait elapsed without acquiring the lock.
// Recoverable: the caller retries or reports "system busy".
var ErrTimeout = errors.New("lock wait timed out")

// Lease is a held property lock. Release must be called exactly once.
type Lease interface {
	Release(ctx context.Context) error
}

// PropertyLocker acquires an exclusive lease scoped to a property id,
// waiting at most the configured bound.
type PropertyLocker interface {
	Acquire(ctx context.Context, propertyID int64) (Lease, error)
}

const (
	// DefaultWait bounds lock acquisition.
	DefaultWait = 10 * time.Second

	// DefaultLeaseTTL caps how long a crashed holder can wedge a property.
	DefaultLeaseTTL = 30 * time.Second

	// retryInterval between acquisition attempts on a contended lock.
	retryInterval = 50 * time.Millisecond
)
