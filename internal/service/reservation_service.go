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

// ReservationService orchestrates atomic multi-day hold placement: one
// writer per property at a time, every calendar write through the validated
// transition path. Only this service, the sweeper and the auction gate
// mutate calendar state.
type ReservationService struct {
	db             *database.DB
	locker         lock.PropertyLocker
	eventBus       domain.EventPublisher
	notifier       domain.Notifier
	holdMinutes    int
	maxBookingDays int
	minAdvanceDays int
	logger         *zerolog.Logger
}

func NewReservationService(db *database.DB, locker lock.PropertyLocker, eventBus domain.EventPublisher, notifier domain.Notifier, holdMinutes, maxBookingDays, minAdvanceDays int, logger *zerolog.Logger) *ReservationService {
	if holdMinutes <= 0 {
		holdMinutes = models.DefaultHoldMinutes
	}
	if maxBookingDays <= 0 {
		maxBookingDays = 365
	}
	if minAdvanceDays < 0 {
		minAdvanceDays = 0
	}
	return &ReservationService{
		db:             db,
		locker:         locker,
		eventBus:       eventBus,
		notifier:       notifier,
		holdMinutes:    holdMinutes,
		maxBookingDays: maxBookingDays,
		minAdvanceDays: minAdvanceDays,
		logger:         logger,
	}
}

// DraftRequest is a direct-booking draft placement.
type DraftRequest struct {
	UserID      int64
	PropertyID  int64
	Start       time.Time
	End         time.Time
	UnitPrice   float64
	ServiceFee  float64
	Nights      int // optional; defaults to the day count of [Start, End)
	HoldMinutes int // optional; defaults to the configured hold duration
}

// DraftResult identifies the pending booking and its hold expiry. Payment
// initiation is a follow-on step owned by the checkout collaborator.
type DraftResult struct {
	BookingID     int64     `json:"booking_id"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
}

// ValidateStayWindow rejects stays starting before the minimum booking
// advance or beyond the booking horizon.
func (s *ReservationService) ValidateStayWindow(start time.Time) error {
	today := models.Midnight(time.Now())
	if start.Before(today.AddDate(0, 0, s.minAdvanceDays)) {
		return database.ErrPastDate
	}
	if start.After(today.AddDate(0, 0, s.maxBookingDays)) {
		return database.ErrDateTooFar
	}
	return nil
}

// PlaceBookingDraft creates a pending booking and reserves its stay window
// atomically. Two concurrent calls on the same property are ordered by lock
// acquisition; the loser observes the winner's committed reservation and
// fails with ErrRangeUnavailable. Calls on different properties do not
// contend.
func (s *ReservationService) PlaceBookingDraft(ctx context.Context, req DraftRequest) (*DraftResult, error) {
	if !req.End.After(req.Start) {
		return nil, database.ErrInvalidRange
	}
	if err := s.ValidateStayWindow(req.Start); err != nil {
		return nil, err
	}
	if _, err := s.db.PropertyByID(req.PropertyID); err != nil {
		return nil, err
	}

	holdMinutes := req.HoldMinutes
	if holdMinutes <= 0 {
		holdMinutes = s.holdMinutes
	}

	lease, err := s.locker.Acquire(ctx, req.PropertyID)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			metrics.IncLockTimeout()
			return nil, database.ErrLockTimeout
		}
		return nil, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error().Err(err).Int64("property_id", req.PropertyID).Msg("lock release failed")
		}
	}()

	booking := &models.Booking{
		UserID:     req.UserID,
		PropertyID: req.PropertyID,
		StartDate:  models.Midnight(req.Start),
		EndDate:    models.Midnight(req.End),
		UnitPrice:  req.UnitPrice,
		ServiceFee: req.ServiceFee,
		Source:     models.SourceDirect,
	}

	holdExpiresAt, err := s.db.CreateDraftWithHold(ctx, booking, req.Nights, holdMinutes, time.Now().UTC())
	if err != nil {
		if errors.Is(err, database.ErrRangeUnavailable) {
			metrics.IncRangeConflict()
		}
		return nil, err
	}

	metrics.IncHoldsPlaced()
	s.publishEvent(events.EventHoldPlaced, events.CalendarEventPayload{
		PropertyID:    booking.PropertyID,
		StartDate:     booking.StartDate,
		EndDate:       booking.EndDate,
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		HoldExpiresAt: &holdExpiresAt,
	})

	return &DraftResult{BookingID: booking.ID, HoldExpiresAt: holdExpiresAt}, nil
}

// ReserveRange places a hold for an already-created booking, for flows where
// the booking row is owned by a collaborator.
func (s *ReservationService) ReserveRange(ctx context.Context, propertyID int64, start, end time.Time, bookingID int64, holdMinutes int) (time.Time, error) {
	if !end.After(start) {
		return time.Time{}, database.ErrInvalidRange
	}
	if _, err := s.db.PropertyByID(propertyID); err != nil {
		return time.Time{}, err
	}
	if holdMinutes <= 0 {
		holdMinutes = s.holdMinutes
	}

	lease, err := s.locker.Acquire(ctx, propertyID)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			metrics.IncLockTimeout()
			return time.Time{}, database.ErrLockTimeout
		}
		return time.Time{}, err
	}
	defer func() {
		_ = lease.Release(context.WithoutCancel(ctx))
	}()

	holdExpiresAt, err := s.db.ReserveRange(ctx, propertyID, models.Midnight(start), models.Midnight(end), bookingID, holdMinutes, time.Now().UTC())
	if err != nil {
		if errors.Is(err, database.ErrRangeUnavailable) {
			metrics.IncRangeConflict()
		}
		return time.Time{}, err
	}

	metrics.IncHoldsPlaced()
	s.publishEvent(events.EventHoldPlaced, events.CalendarEventPayload{
		PropertyID:    propertyID,
		StartDate:     models.Midnight(start),
		EndDate:       models.Midnight(end),
		BookingID:     bookingID,
		HoldExpiresAt: &holdExpiresAt,
	})
	return holdExpiresAt, nil
}

// ConfirmBooking promotes a held booking to booked after payment succeeds.
func (s *ReservationService) ConfirmBooking(ctx context.Context, bookingID int64) error {
	if err := s.db.ConfirmBookingHold(ctx, bookingID); err != nil {
		return err
	}

	if booking, err := s.db.GetBooking(ctx, bookingID); err == nil {
		s.publishEvent(events.EventBookingConfirmed, events.CalendarEventPayload{
			PropertyID: booking.PropertyID,
			StartDate:  booking.StartDate,
			EndDate:    booking.EndDate,
			BookingID:  booking.ID,
			UserID:     booking.UserID,
			Source:     booking.Source,
		})
	}
	return nil
}

// CancelBooking releases the booking's calendar coverage.
func (s *ReservationService) CancelBooking(ctx context.Context, bookingID int64) error {
	if err := s.db.CancelBooking(ctx, bookingID); err != nil {
		return err
	}

	if booking, err := s.db.GetBooking(ctx, bookingID); err == nil {
		s.publishEvent(events.EventBookingCancelled, events.CalendarEventPayload{
			PropertyID: booking.PropertyID,
			StartDate:  booking.StartDate,
			EndDate:    booking.EndDate,
			BookingID:  booking.ID,
			UserID:     booking.UserID,
		})
	}
	return nil
}

// CheckAvailability is the read-only range snapshot for UI hints: best
// effort, may be stale, never authoritative.
func (s *ReservationService) CheckAvailability(ctx context.Context, propertyID int64, start, end time.Time, userID int64) (*models.RangeCheck, error) {
	check, err := s.db.IsRangeFree(ctx, propertyID, models.Midnight(start), models.Midnight(end), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if userID != 0 && !check.Free {
		reservedBySelf, err := s.db.ReservedBy(ctx, check.Days, userID)
		if err != nil {
			return nil, err
		}
		check.ReservedBySelf = reservedBySelf
	}
	return check, nil
}

// BlockRange places an administrative block over a range.
func (s *ReservationService) BlockRange(ctx context.Context, propertyID int64, start, end time.Time, reason string) error {
	if reason == "" {
		reason = models.LockManual
	}
	if err := s.db.BlockRange(ctx, propertyID, models.Midnight(start), models.Midnight(end), reason); err != nil {
		return err
	}

	s.publishEvent(events.EventRangeBlocked, events.CalendarEventPayload{
		PropertyID: propertyID,
		StartDate:  models.Midnight(start),
		EndDate:    models.Midnight(end),
		Reason:     reason,
	})
	if s.notifier != nil && reason == models.LockManual {
		s.notifier.NotifyManagers(formatBlockNote(propertyID, start, end))
	}
	return nil
}

// UnblockRange releases administrative blocks over a range.
func (s *ReservationService) UnblockRange(ctx context.Context, propertyID int64, start, end time.Time) error {
	return s.db.UnblockRange(ctx, propertyID, models.Midnight(start), models.Midnight(end))
}

// ReclaimExpiredHolds frees expired holds and expires orphaned pending
// bookings. Runs periodically from the sweeper worker and on demand.
func (s *ReservationService) ReclaimExpiredHolds(ctx context.Context, now time.Time, bookingGrace time.Duration) (int, error) {
	freed, err := s.db.ReclaimExpiredHolds(ctx, now)
	if err != nil {
		return 0, err
	}
	metrics.AddHoldsReclaimed(freed)

	expired, err := s.db.ExpirePendingBookings(ctx, now.Add(-bookingGrace))
	if err != nil {
		return freed, err
	}

	if freed > 0 || expired > 0 {
		s.logger.Info().Int("days_freed", freed).Int("bookings_expired", expired).Msg("expiry sweep")
		s.publishEvent(events.EventHoldExpired, events.CalendarEventPayload{ReleasedDays: freed})
	}
	return freed, nil
}

func (s *ReservationService) publishEvent(eventType string, payload events.CalendarEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func formatBlockNote(propertyID int64, start, end time.Time) string {
	return fmt.Sprintf("Calendar block placed: property %d, %s to %s",
		propertyID, start.Format(models.DayFormat), end.Format(models.DayFormat))
}
