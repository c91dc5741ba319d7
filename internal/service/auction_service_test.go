package service

import (
	"context"
	"testing"
	"time"

	"arenda/internal/database"
	"arenda/internal/events"
	"arenda/internal/lock"
	"arenda/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAuctionService(t *testing.T) (*AuctionService, *ReservationService, *database.DB, *events.EventBus) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	db.SetProperties([]*models.Property{
		{ID: 1, UID: "sea-view-apt", Name: "Sea View Apartment", IsActive: true},
	})

	bus := events.NewEventBus()
	locker := lock.NewMemoryPropertyLocker(2 * time.Second)
	auctions := NewAuctionService(db, locker, bus, nil, &logger)
	reservations := NewReservationService(db, locker, bus, nil, 30, 365, 0, &logger)
	return auctions, reservations, db, bus
}

func TestOpenAuction(t *testing.T) {
	auctions, reservations, db, bus := setupAuctionService(t)
	ctx := context.Background()
	opened := collectEvents(bus, events.EventAuctionBlocked)

	auction := &models.Auction{
		PropertyID:      1,
		StayPeriodStart: futureDay(30),
		StayPeriodEnd:   futureDay(33),
		CurrentPrice:    500,
	}
	require.NoError(t, auctions.OpenAuction(ctx, auction))
	assert.NotZero(t, auction.ID)
	require.Len(t, *opened, 1)
	assert.Equal(t, auction.ID, (*opened)[0].AuctionID)

	// The window is gated against direct bookings.
	_, err := reservations.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(31), End: futureDay(34),
		UnitPrice: 100,
	})
	assert.ErrorIs(t, err, database.ErrRangeUnavailable)

	check, err := reservations.CheckAvailability(ctx, 1, futureDay(30), futureDay(33), 0)
	require.NoError(t, err)
	assert.False(t, check.Free)
	assert.True(t, check.HasAuction)

	days, err := db.GetRange(ctx, 1, futureDay(30), futureDay(33))
	require.NoError(t, err)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.Equal(t, models.DayBlocked, d.Status)
		assert.Equal(t, models.LockAuction, d.LockReason)
	}
}

func TestOpenAuction_OccupiedWindow(t *testing.T) {
	auctions, reservations, _, _ := setupAuctionService(t)
	ctx := context.Background()

	_, err := reservations.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(30), End: futureDay(33),
		UnitPrice: 100,
	})
	require.NoError(t, err)

	err = auctions.OpenAuction(ctx, &models.Auction{
		PropertyID:      1,
		StayPeriodStart: futureDay(32),
		StayPeriodEnd:   futureDay(35),
	})
	assert.ErrorIs(t, err, database.ErrRangeUnavailable)
}

func TestResolveAuction_WinnerBecomesBooked(t *testing.T) {
	auctions, _, db, bus := setupAuctionService(t)
	ctx := context.Background()
	resolved := collectEvents(bus, events.EventAuctionResolved)

	auction := &models.Auction{
		PropertyID:      1,
		StayPeriodStart: futureDay(30),
		StayPeriodEnd:   futureDay(33),
	}
	require.NoError(t, auctions.OpenAuction(ctx, auction))

	winner := &models.Booking{
		UserID:     7,
		PropertyID: 1,
		StartDate:  auction.StayPeriodStart,
		EndDate:    auction.StayPeriodEnd,
		Status:     models.StatusPending,
		Source:     models.SourceAuctionWin,
	}
	require.NoError(t, createBookingRow(ctx, db, winner))

	require.NoError(t, auctions.ResolveAuction(ctx, auction.ID, winner.ID, models.SourceAuctionBuyNow))

	days, err := db.DaysByBooking(ctx, winner.ID)
	require.NoError(t, err)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.Equal(t, models.DayBooked, d.Status)
	}

	booking, err := db.GetBooking(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
	assert.Equal(t, models.SourceAuctionBuyNow, booking.Source)

	require.Len(t, *resolved, 1)
	assert.Equal(t, models.SourceAuctionBuyNow, (*resolved)[0].Source)
}

func TestCancelAuction_ReleasesWindow(t *testing.T) {
	auctions, reservations, _, _ := setupAuctionService(t)
	ctx := context.Background()

	auction := &models.Auction{
		PropertyID:      1,
		StayPeriodStart: futureDay(30),
		StayPeriodEnd:   futureDay(33),
	}
	require.NoError(t, auctions.OpenAuction(ctx, auction))

	require.NoError(t, auctions.CancelAuction(ctx, auction.ID))

	// Direct bookings can take the window again.
	_, err := reservations.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(30), End: futureDay(33),
		UnitPrice: 100,
	})
	assert.NoError(t, err)
}

// createBookingRow materializes a booking row without calendar coverage, the
// shape an auction winner arrives in: a draft on a throwaway range whose
// hold is then reclaimed.
func createBookingRow(ctx context.Context, db *database.DB, booking *models.Booking) error {
	stash := *booking
	stash.StartDate = futureDay(300)
	stash.EndDate = futureDay(301)
	if _, err := db.CreateDraftWithHold(ctx, &stash, 0, 1, time.Now().UTC()); err != nil {
		return err
	}
	if _, err := db.ReclaimExpiredHolds(ctx, time.Now().UTC().Add(2*time.Minute)); err != nil {
		return err
	}
	booking.ID = stash.ID
	return nil
}
