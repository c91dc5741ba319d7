package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FailoverPropertyLocker uses the primary locker until it errors, then falls
// back and probes the primary again after a minute. Lock timeouts are normal
// contention, not failover triggers.
type FailoverPropertyLocker struct {
	primary  PropertyLocker
	fallback PropertyLocker
	logger   *zerolog.Logger
	isDown   atomic.Bool
	downAt   atomic.Int64
}

func NewFailoverPropertyLocker(primary, fallback PropertyLocker, logger *zerolog.Logger) *FailoverPropertyLocker {
	return &FailoverPropertyLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *FailoverPropertyLocker) Acquire(ctx context.Context, propertyID int64) (Lease, error) {
	if !l.isDown.Load() {
		lease, err := l.primary.Acquire(ctx, propertyID)
		if err == nil || errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return lease, err
		}
		l.logger.Error().Err(err).Msg("Primary lock service failed, falling back to in-process locks")
		l.isDown.Store(true)
		l.downAt.Store(time.Now().UnixNano())
	}

	// Try to recover after 1 minute.
	if l.isDown.Load() && time.Since(time.Unix(0, l.downAt.Load())) > time.Minute {
		lease, err := l.primary.Acquire(ctx, propertyID)
		if err == nil || errors.Is(err, ErrTimeout) {
			l.isDown.Store(false)
			return lease, err
		}
		l.downAt.Store(time.Now().UnixNano())
	}

	return l.fallback.Acquire(ctx, propertyID)
}
