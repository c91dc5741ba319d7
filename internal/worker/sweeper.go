package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// HoldSweeper is the reclaim side of hold expiry. Holds past their expiry
// are already treated as free by availability reads; the sweeper converts
// that logical state into stored state and expires orphaned drafts.
type HoldSweeper interface {
	ReclaimExpiredHolds(ctx context.Context, now time.Time, bookingGrace time.Duration) (int, error)
}

// Sweeper runs the expiry sweep on a fixed interval.
type Sweeper struct {
	service      HoldSweeper
	interval     time.Duration
	bookingGrace time.Duration
	retryPolicy  RetryPolicy
	logger       *zerolog.Logger
}

func NewSweeper(service HoldSweeper, interval, bookingGrace time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if bookingGrace <= 0 {
		bookingGrace = time.Hour
	}
	return &Sweeper{
		service:      service,
		interval:     interval,
		bookingGrace: bookingGrace,
		retryPolicy: RetryPolicy{
			MaxRetries:    5,
			InitialDelay:  2 * time.Second,
			MaxDelay:      interval,
			BackoffFactor: 2,
		},
		logger: logger,
	}
}

// Start runs one sweep immediately, then on every tick until ctx is done.
// A failing sweep backs off and is retried before the next regular tick.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")
	defer s.logger.Info().Msg("sweeper stopped")

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	for attempt := 1; attempt <= s.retryPolicy.MaxRetries; attempt++ {
		_, err := s.service.ReclaimExpiredHolds(ctx, time.Now().UTC(), s.bookingGrace)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		delay := s.retryPolicy.NextDelay(attempt)
		s.logger.Error().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("expiry sweep failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
