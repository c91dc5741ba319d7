package service

import (
	"context"
	"encoding/json"
	"sync"
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

func setupService(t *testing.T) (*ReservationService, *database.DB, *events.EventBus) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	db.SetProperties([]*models.Property{
		{ID: 1, UID: "sea-view-apt", Name: "Sea View Apartment", IsActive: true},
		{ID: 2, UID: "garden-house", Name: "Garden House", IsActive: true},
	})

	bus := events.NewEventBus()
	locker := lock.NewMemoryPropertyLocker(2 * time.Second)
	svc := NewReservationService(db, locker, bus, nil, 30, 365, 0, &logger)
	return svc, db, bus
}

func futureDay(daysAhead int) time.Time {
	return models.Midnight(time.Now()).AddDate(0, 0, daysAhead)
}

func collectEvents(bus *events.EventBus, eventType string) *[]events.CalendarEventPayload {
	var (
		mu       sync.Mutex
		captured []events.CalendarEventPayload
	)
	bus.Subscribe(eventType, func(ev *events.Event) error {
		var payload events.CalendarEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		mu.Lock()
		captured = append(captured, payload)
		mu.Unlock()
		return nil
	})
	return &captured
}

func TestPlaceBookingDraft(t *testing.T) {
	svc, db, bus := setupService(t)
	ctx := context.Background()
	placed := collectEvents(bus, events.EventHoldPlaced)

	result, err := svc.PlaceBookingDraft(ctx, DraftRequest{
		UserID:     7,
		PropertyID: 1,
		Start:      futureDay(10),
		End:        futureDay(13),
		UnitPrice:  100,
	})
	require.NoError(t, err)
	assert.NotZero(t, result.BookingID)
	assert.True(t, result.HoldExpiresAt.After(time.Now()))

	booking, err := db.GetBooking(ctx, result.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, float64(300), booking.Amount)

	require.Len(t, *placed, 1)
	assert.Equal(t, result.BookingID, (*placed)[0].BookingID)
	assert.Equal(t, int64(7), (*placed)[0].UserID)
}

func TestPlaceBookingDraft_Validation(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	t.Run("empty range", func(t *testing.T) {
		_, err := svc.PlaceBookingDraft(ctx, DraftRequest{
			UserID: 7, PropertyID: 1,
			Start: futureDay(10), End: futureDay(10),
		})
		assert.ErrorIs(t, err, database.ErrInvalidRange)
	})

	t.Run("past checkin", func(t *testing.T) {
		_, err := svc.PlaceBookingDraft(ctx, DraftRequest{
			UserID: 7, PropertyID: 1,
			Start: futureDay(-1), End: futureDay(2),
		})
		assert.ErrorIs(t, err, database.ErrPastDate)
	})

	t.Run("beyond booking horizon", func(t *testing.T) {
		_, err := svc.PlaceBookingDraft(ctx, DraftRequest{
			UserID: 7, PropertyID: 1,
			Start: futureDay(400), End: futureDay(403),
		})
		assert.ErrorIs(t, err, database.ErrDateTooFar)
	})

	t.Run("unknown property", func(t *testing.T) {
		_, err := svc.PlaceBookingDraft(ctx, DraftRequest{
			UserID: 7, PropertyID: 99,
			Start: futureDay(10), End: futureDay(13),
		})
		assert.ErrorIs(t, err, database.ErrUnknownProperty)
	})
}

func TestPlaceBookingDraft_MinimumAdvance(t *testing.T) {
	_, db, bus := setupService(t)
	logger := zerolog.Nop()
	locker := lock.NewMemoryPropertyLocker(2 * time.Second)
	svc := NewReservationService(db, locker, bus, nil, 30, 365, 2, &logger)
	ctx := context.Background()

	_, err := svc.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(1), End: futureDay(4),
		UnitPrice: 100,
	})
	assert.ErrorIs(t, err, database.ErrPastDate)

	result, err := svc.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(2), End: futureDay(5),
		UnitPrice: 100,
	})
	require.NoError(t, err)
	assert.NotZero(t, result.BookingID)
}

func TestPlaceBookingDraft_Conflict(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(10), End: futureDay(13),
		UnitPrice: 100,
	})
	require.NoError(t, err)

	_, err = svc.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 8, PropertyID: 1,
		Start: futureDay(12), End: futureDay(15),
		UnitPrice: 100,
	})
	assert.ErrorIs(t, err, database.ErrRangeUnavailable)
}

type timeoutLocker struct{}

func (timeoutLocker) Acquire(context.Context, int64) (lock.Lease, error) {
	return nil, lock.ErrTimeout
}

func TestPlaceBookingDraft_LockTimeout(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()
	db.SetProperties([]*models.Property{
		{ID: 1, UID: "sea-view-apt", Name: "Sea View Apartment", IsActive: true},
	})

	svc := NewReservationService(db, timeoutLocker{}, nil, nil, 30, 365, 0, &logger)

	_, err = svc.PlaceBookingDraft(context.Background(), DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(10), End: futureDay(13),
	})
	assert.ErrorIs(t, err, database.ErrLockTimeout)
}

func TestPlaceBookingDraft_Concurrent(t *testing.T) {
	svc, db, _ := setupService(t)
	ctx := context.Background()

	start := futureDay(10)
	end := futureDay(13)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			_, err := svc.PlaceBookingDraft(ctx, DraftRequest{
				UserID:     int64(id + 1),
				PropertyID: 1,
				Start:      start,
				End:        end,
				UnitPrice:  100,
			})
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, database.ErrRangeUnavailable)
		}
	}
	assert.Equal(t, 1, successCount, "exactly one overlapping draft should win")

	days, err := db.GetRange(ctx, 1, start, end)
	require.NoError(t, err)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.Equal(t, models.DayReserved, d.Status)
	}
}

func TestConfirmAndCancelBooking(t *testing.T) {
	svc, db, bus := setupService(t)
	ctx := context.Background()
	confirmed := collectEvents(bus, events.EventBookingConfirmed)
	cancelled := collectEvents(bus, events.EventBookingCancelled)

	result, err := svc.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(10), End: futureDay(13),
		UnitPrice: 100,
	})
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmBooking(ctx, result.BookingID))
	booking, err := db.GetBooking(ctx, result.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
	assert.Len(t, *confirmed, 1)

	require.NoError(t, svc.CancelBooking(ctx, result.BookingID))
	booking, err = db.GetBooking(ctx, result.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, booking.Status)
	assert.Len(t, *cancelled, 1)

	check, err := svc.CheckAvailability(ctx, 1, futureDay(10), futureDay(13), 0)
	require.NoError(t, err)
	assert.True(t, check.Free)
}

func TestCheckAvailability_ReservedBySelf(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(10), End: futureDay(13),
		UnitPrice: 100,
	})
	require.NoError(t, err)

	check, err := svc.CheckAvailability(ctx, 1, futureDay(10), futureDay(13), 7)
	require.NoError(t, err)
	assert.False(t, check.Free)
	assert.Equal(t, models.DayReserved, check.Reason)
	assert.True(t, check.ReservedBySelf)

	check, err = svc.CheckAvailability(ctx, 1, futureDay(10), futureDay(13), 8)
	require.NoError(t, err)
	assert.False(t, check.Free)
	assert.False(t, check.ReservedBySelf)
}

func TestBlockRangeAndReclaim(t *testing.T) {
	svc, db, bus := setupService(t)
	ctx := context.Background()
	blocked := collectEvents(bus, events.EventRangeBlocked)

	require.NoError(t, svc.BlockRange(ctx, 1, futureDay(20), futureDay(23), ""))
	require.Len(t, *blocked, 1)
	assert.Equal(t, models.LockManual, (*blocked)[0].Reason)

	check, err := svc.CheckAvailability(ctx, 1, futureDay(20), futureDay(23), 0)
	require.NoError(t, err)
	assert.False(t, check.Free)
	assert.Equal(t, models.DayBlocked, check.Reason)

	require.NoError(t, svc.UnblockRange(ctx, 1, futureDay(20), futureDay(23)))

	check, err = svc.CheckAvailability(ctx, 1, futureDay(20), futureDay(23), 0)
	require.NoError(t, err)
	assert.True(t, check.Free)

	// Reclaim frees an expired hold on demand.
	result, err := svc.PlaceBookingDraft(ctx, DraftRequest{
		UserID: 7, PropertyID: 1,
		Start: futureDay(10), End: futureDay(13),
		UnitPrice: 100, HoldMinutes: 1,
	})
	require.NoError(t, err)

	freed, err := svc.ReclaimExpiredHolds(ctx, time.Now().UTC().Add(2*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, freed)

	days, err := db.DaysByBooking(ctx, result.BookingID)
	require.NoError(t, err)
	assert.Empty(t, days)
}
