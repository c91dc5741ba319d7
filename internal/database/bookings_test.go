package database

import (
	"context"
	"testing"
	"time"

	"arenda/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDraftWithHold(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	booking := &models.Booking{
		UserID:     7,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}

	holdExpiresAt, err := db.CreateDraftWithHold(ctx, booking, 0, 30, now)
	require.NoError(t, err)
	assert.NotZero(t, booking.ID)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, models.SourceDirect, booking.Source)
	assert.Equal(t, float64(300), booking.Amount) // 3 nights x 100
	assert.Equal(t, now.Add(30*time.Minute), holdExpiresAt)

	days, err := db.DaysByBooking(ctx, booking.ID)
	require.NoError(t, err)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.Equal(t, models.DayReserved, d.Status)
		assert.Equal(t, models.LockBookingHold, d.LockReason)
		require.NotNil(t, d.HoldExpiresAt)
		assert.WithinDuration(t, holdExpiresAt, *d.HoldExpiresAt, time.Second)
	}
}

func TestCreateDraftWithHold_ConflictRollsBack(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	winner := &models.Booking{
		UserID:     7,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}
	_, err := db.CreateDraftWithHold(ctx, winner, 0, 30, now)
	require.NoError(t, err)

	loser := &models.Booking{
		UserID:     8,
		PropertyID: 1,
		StartDate:  day("2026-10-03"),
		EndDate:    day("2026-10-06"),
		UnitPrice:  100,
	}
	_, err = db.CreateDraftWithHold(ctx, loser, 0, 30, now)
	assert.ErrorIs(t, err, ErrRangeUnavailable)

	// The loser's pending booking must not survive the rollback.
	bookings, err := db.GetUserBookings(ctx, 8)
	require.NoError(t, err)
	assert.Empty(t, bookings)

	// The winner's days are untouched.
	days, err := db.DaysByBooking(ctx, winner.ID)
	require.NoError(t, err)
	assert.Len(t, days, 3)
}

func TestCreateDraftWithHold_BookedDayStaysOwned(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	owner := createTestBooking(t, db, 77, 1)
	require.NoError(t, db.UpsertDay(ctx, 1, day("2026-10-02"), models.DayTransition{
		Status:    models.DayBooked,
		BookingID: &owner.ID,
	}))

	attempt := &models.Booking{
		UserID:     8,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}
	_, err := db.CreateDraftWithHold(ctx, attempt, 0, 30, now)
	assert.ErrorIs(t, err, ErrRangeUnavailable)

	row, err := db.GetDay(ctx, 1, day("2026-10-02"))
	require.NoError(t, err)
	assert.Equal(t, models.DayBooked, row.Status)
	require.NotNil(t, row.BookingID)
	assert.Equal(t, owner.ID, *row.BookingID)
}

func TestCreateDraftWithHold_ReclaimsExpiredHold(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	stale := &models.Booking{
		UserID:     7,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}
	_, err := db.CreateDraftWithHold(ctx, stale, 0, 30, now)
	require.NoError(t, err)

	// The same range succeeds once the first hold has expired.
	later := now.Add(31 * time.Minute)
	fresh := &models.Booking{
		UserID:     8,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  120,
	}
	_, err = db.CreateDraftWithHold(ctx, fresh, 0, 30, later)
	require.NoError(t, err)

	days, err := db.DaysByBooking(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Len(t, days, 3)

	staleDays, err := db.DaysByBooking(ctx, stale.ID)
	require.NoError(t, err)
	assert.Empty(t, staleDays)
}

func TestCreateDraftWithHold_ExplicitNights(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	booking := &models.Booking{
		UserID:     7,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}
	_, err := db.CreateDraftWithHold(ctx, booking, 2, 30, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, float64(200), booking.Amount)
}

func TestCreateDraftWithHold_InvalidInput(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.CreateDraftWithHold(ctx, &models.Booking{
		UserID: 7, PropertyID: 1,
		StartDate: day("2026-10-04"), EndDate: day("2026-10-01"),
	}, 0, 30, now)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = db.CreateDraftWithHold(ctx, &models.Booking{
		UserID: 7, PropertyID: 99,
		StartDate: day("2026-10-01"), EndDate: day("2026-10-04"),
	}, 0, 30, now)
	assert.ErrorIs(t, err, ErrUnknownProperty)
}

func TestReserveRange_SameBookingRefreshes(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	booking := createTestBooking(t, db, 7, 1)

	first, err := db.ReserveRange(ctx, 1, day("2026-10-01"), day("2026-10-04"), booking.ID, 30, now)
	require.NoError(t, err)

	second, err := db.ReserveRange(ctx, 1, day("2026-10-01"), day("2026-10-04"), booking.ID, 30, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, second.After(first))

	other := createTestBooking(t, db, 9, 1)
	_, err = db.ReserveRange(ctx, 1, day("2026-10-02"), day("2026-10-05"), other.ID, 30, now)
	assert.ErrorIs(t, err, ErrRangeUnavailable)
}

func TestReserveRange_UnknownBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.ReserveRange(context.Background(), 1, day("2026-10-01"), day("2026-10-04"), 4242, 30, time.Now().UTC())
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestConfirmBookingHold(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	booking := &models.Booking{
		UserID:     7,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}
	_, err := db.CreateDraftWithHold(ctx, booking, 0, 30, now)
	require.NoError(t, err)

	require.NoError(t, db.ConfirmBookingHold(ctx, booking.ID))

	days, err := db.DaysByBooking(ctx, booking.ID)
	require.NoError(t, err)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.Equal(t, models.DayBooked, d.Status)
		assert.Nil(t, d.HoldExpiresAt)
	}

	confirmed, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
}

func TestConfirmBookingHold_AfterReclaimFails(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	booking := &models.Booking{
		UserID:     7,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}
	_, err := db.CreateDraftWithHold(ctx, booking, 0, 30, now)
	require.NoError(t, err)

	freed, err := db.ReclaimExpiredHolds(ctx, now.Add(31*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, freed)

	err = db.ConfirmBookingHold(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrRangeUnavailable)
}

func TestConfirmBookingHold_PartialReclaimKeepsOtherHold(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	first := &models.Booking{
		UserID:     7,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}
	_, err := db.CreateDraftWithHold(ctx, first, 0, 1, now)
	require.NoError(t, err)

	// Refresh only the first two nights with a longer hold.
	_, err = db.ReserveRange(ctx, 1, day("2026-10-01"), day("2026-10-03"), first.ID, 60, now)
	require.NoError(t, err)

	// The last night's hold expires and a second draft takes it.
	later := now.Add(2 * time.Minute)
	second := &models.Booking{
		UserID:     8,
		PropertyID: 1,
		StartDate:  day("2026-10-03"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}
	_, err = db.CreateDraftWithHold(ctx, second, 0, 30, later)
	require.NoError(t, err)

	require.NoError(t, db.ConfirmBookingHold(ctx, first.ID))

	// Only the nights still held by the first booking become booked.
	days, err := db.GetRange(ctx, 1, day("2026-10-01"), day("2026-10-03"))
	require.NoError(t, err)
	require.Len(t, days, 2)
	for _, d := range days {
		assert.Equal(t, models.DayBooked, d.Status)
		require.NotNil(t, d.BookingID)
		assert.Equal(t, first.ID, *d.BookingID)
	}

	// The reclaimed night stays with the second draft's hold.
	stolen, err := db.GetDay(ctx, 1, day("2026-10-03"))
	require.NoError(t, err)
	assert.Equal(t, models.DayReserved, stolen.Status)
	require.NotNil(t, stolen.BookingID)
	assert.Equal(t, second.ID, *stolen.BookingID)
}

func TestConfirmBookingHold_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	err := db.ConfirmBookingHold(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestCancelBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	booking := &models.Booking{
		UserID:     7,
		PropertyID: 1,
		StartDate:  day("2026-10-01"),
		EndDate:    day("2026-10-04"),
		UnitPrice:  100,
	}
	_, err := db.CreateDraftWithHold(ctx, booking, 0, 30, now)
	require.NoError(t, err)

	require.NoError(t, db.CancelBooking(ctx, booking.ID))

	days, err := db.DaysByBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Empty(t, days)

	check, err := db.IsRangeFree(ctx, 1, day("2026-10-01"), day("2026-10-04"), now)
	require.NoError(t, err)
	assert.True(t, check.Free)

	cancelled, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
}

func TestUpdateBookingStatusWithVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	booking := createTestBooking(t, db, 7, 1)

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, booking.ID, 1, models.StatusConfirmed))

	// Stale version loses.
	err := db.UpdateBookingStatusWithVersion(ctx, booking.ID, 1, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	current, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, current.Status)
	assert.Equal(t, int64(2), current.Version)
}
