package worker

import (
	"context"
	"time"

	"arenda/internal/database"
	"arenda/internal/domain"
	"arenda/internal/models"

	"github.com/rs/zerolog"
)

// BlockApplier is the calendar side of external block import.
type BlockApplier interface {
	BlockRange(ctx context.Context, propertyID int64, start, end time.Time, reason string) error
}

// PropertyResolver maps feed property identifiers to internal ids.
type PropertyResolver interface {
	PropertyByUID(uid string) (*models.Property, error)
}

// BlocksSyncWorker imports externally managed blocks (channel managers,
// spreadsheets maintained by staff) into the calendar on a fixed interval.
// Imported days get the external_sync lock reason so they can be released
// separately from manual blocks.
type BlocksSyncWorker struct {
	feed     domain.BlockFeed
	applier  BlockApplier
	resolver PropertyResolver
	interval time.Duration
	logger   *zerolog.Logger
}

func NewBlocksSyncWorker(feed domain.BlockFeed, applier BlockApplier, resolver PropertyResolver, interval time.Duration, logger *zerolog.Logger) *BlocksSyncWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &BlocksSyncWorker{
		feed:     feed,
		applier:  applier,
		resolver: resolver,
		interval: interval,
		logger:   logger,
	}
}

// Start syncs once immediately, then on every tick until ctx is done.
func (w *BlocksSyncWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("blocks sync started")
	defer w.logger.Info().Msg("blocks sync stopped")

	w.syncOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.syncOnce(ctx)
		}
	}
}

func (w *BlocksSyncWorker) syncOnce(ctx context.Context) {
	blocks, err := w.feed.FetchBlocks(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch external blocks failed")
		return
	}

	applied := 0
	for _, block := range blocks {
		property, err := w.resolver.PropertyByUID(block.PropertyUID)
		if err != nil {
			w.logger.Warn().Str("property_uid", block.PropertyUID).Msg("external block for unknown property skipped")
			continue
		}
		if !block.End.After(block.Start) {
			w.logger.Warn().Str("property_uid", block.PropertyUID).
				Time("start", block.Start).Time("end", block.End).
				Msg("external block with empty range skipped")
			continue
		}

		err = w.applier.BlockRange(ctx, property.ID, block.Start, block.End, models.LockExternalSync)
		if err != nil {
			if database.Recoverable(err) {
				w.logger.Warn().Err(err).Int64("property_id", property.ID).Msg("external block not applied")
				continue
			}
			w.logger.Error().Err(err).Int64("property_id", property.ID).Msg("external block apply failed")
			continue
		}
		applied++
	}

	if applied > 0 {
		w.logger.Info().Int("applied", applied).Int("fetched", len(blocks)).Msg("external blocks synced")
	}
}
