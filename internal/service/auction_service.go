package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arenda/internal/database"
	"arenda/internal/domain"
	"arenda/internal/events"
	"arenda/internal/lock"
	"arenda/internal/metrics"
	"arenda/internal/models"

	"github.com/rs/zerolog"
)

// AuctionService gates calendar coverage for stay-period auctions: the stay
// window is blocked for the auction's lifetime so direct bookings cannot
// race a live auction.
type AuctionService struct {
	db       *database.DB
	locker   lock.PropertyLocker
	eventBus domain.EventPublisher
	notifier domain.Notifier
	logger   *zerolog.Logger
}

func NewAuctionService(db *database.DB, locker lock.PropertyLocker, eventBus domain.EventPublisher, notifier domain.Notifier, logger *zerolog.Logger) *AuctionService {
	return &AuctionService{
		db:       db,
		locker:   locker,
		eventBus: eventBus,
		notifier: notifier,
		logger:   logger,
	}
}

// OpenAuction creates the auction and blocks its stay window under the
// property lock. If any day of the window is already occupied the auction
// is not opened.
func (s *AuctionService) OpenAuction(ctx context.Context, auction *models.Auction) error {
	if !auction.StayPeriodEnd.After(auction.StayPeriodStart) {
		return database.ErrInvalidRange
	}
	if _, err := s.db.PropertyByID(auction.PropertyID); err != nil {
		return err
	}

	lease, err := s.locker.Acquire(ctx, auction.PropertyID)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			metrics.IncLockTimeout()
			return database.ErrLockTimeout
		}
		return err
	}
	defer func() {
		_ = lease.Release(context.WithoutCancel(ctx))
	}()

	if err := s.db.CreateAuction(ctx, auction); err != nil {
		return err
	}
	if err := s.db.BlockForAuction(ctx, auction.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, database.ErrRangeUnavailable) {
			metrics.IncRangeConflict()
		}
		return err
	}

	metrics.IncAuctionBlock()
	s.publishEvent(events.EventAuctionBlocked, events.CalendarEventPayload{
		PropertyID: auction.PropertyID,
		StartDate:  auction.StayPeriodStart,
		EndDate:    auction.StayPeriodEnd,
		AuctionID:  auction.ID,
	})
	return nil
}

// ResolveAuction converts the auction block into a confirmed booking for
// the winner.
func (s *AuctionService) ResolveAuction(ctx context.Context, auctionID, winnerBookingID int64, source string) error {
	if source == "" {
		source = models.SourceAuctionWin
	}
	if err := s.db.ResolveAuction(ctx, auctionID, &winnerBookingID, source); err != nil {
		return err
	}

	s.notifyResolved(ctx, auctionID, events.EventAuctionResolved, source)
	return nil
}

// CancelAuction releases the auction block with no winner.
func (s *AuctionService) CancelAuction(ctx context.Context, auctionID int64) error {
	if err := s.db.ResolveAuction(ctx, auctionID, nil, ""); err != nil {
		return err
	}

	s.notifyResolved(ctx, auctionID, events.EventAuctionResolved, "")
	return nil
}

func (s *AuctionService) notifyResolved(ctx context.Context, auctionID int64, eventType, source string) {
	auction, err := s.db.GetAuction(ctx, auctionID)
	if err != nil {
		s.logger.Error().Err(err).Int64("auction_id", auctionID).Msg("auction lookup after resolve failed")
		return
	}

	s.publishEvent(eventType, events.CalendarEventPayload{
		PropertyID: auction.PropertyID,
		StartDate:  auction.StayPeriodStart,
		EndDate:    auction.StayPeriodEnd,
		AuctionID:  auction.ID,
		Source:     source,
	})
	if s.notifier != nil {
		s.notifier.NotifyManagers(fmt.Sprintf("Auction %d resolved: property %d, %s to %s",
			auction.ID, auction.PropertyID,
			auction.StayPeriodStart.Format(models.DayFormat),
			auction.StayPeriodEnd.Format(models.DayFormat)))
	}
}

func (s *AuctionService) publishEvent(eventType string, payload events.CalendarEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
