package database

import (
	"context"
	"fmt"
	"time"

	"arenda/internal/models"
)

// dayOccupied implements the conflict predicate: booked and blocked days are
// always occupied; reserved days only while their hold has not expired. A
// reserved day without a recorded expiry is treated as still held.
func dayOccupied(d *models.CalendarDay, now time.Time) bool {
	switch d.Status {
	case models.DayBooked, models.DayBlocked:
		return true
	case models.DayReserved:
		return d.HoldExpiresAt == nil || !d.HoldExpiresAt.Before(now)
	}
	return false
}

func checkRange(ctx context.Context, q dbtx, propertyID int64, start, end, now time.Time) (*models.RangeCheck, error) {
	days, err := getRange(ctx, q, propertyID, start, end)
	if err != nil {
		return nil, err
	}

	check := &models.RangeCheck{Free: true, Days: days}
	for _, d := range days {
		if d.AuctionID != nil {
			check.HasAuction = true
		}
		if dayOccupied(d, now) {
			if check.Free {
				check.Free = false
				// Hold conflicts report "reserved" even if the status string drifts.
				if d.Status == models.DayBooked || d.Status == models.DayBlocked {
					check.Reason = d.Status
				} else {
					check.Reason = models.DayReserved
				}
			}
			check.BlockingDays = append(check.BlockingDays, d.Day)
		}
	}
	return check, nil
}

// IsRangeFree is the lock-free availability snapshot for [start, end). It is
// a UI hint, not the authority: only draft placement decides under the lock.
func (db *DB) IsRangeFree(ctx context.Context, propertyID int64, start, end, now time.Time) (*models.RangeCheck, error) {
	if end.Before(start) || end.Equal(start) {
		return nil, ErrInvalidRange
	}
	if _, err := db.PropertyByID(propertyID); err != nil {
		return nil, err
	}
	return checkRange(ctx, db.db, propertyID, start, end, now)
}

// HasAuctionOverlap reports whether any day of [start, end) carries an
// auction reference.
func (db *DB) HasAuctionOverlap(ctx context.Context, propertyID int64, start, end time.Time) (bool, error) {
	query := `SELECT COUNT(*) FROM calendar_days
              WHERE property_id = ? AND day >= ? AND day < ? AND auction_id IS NOT NULL`
	var n int
	err := db.db.QueryRowContext(ctx, query, propertyID, start.Format(models.DayFormat), end.Format(models.DayFormat)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check auction overlap: %w", err)
	}
	return n > 0, nil
}

// ReservedBy reports whether any of the reserved days belong to a booking of
// the given user, so the UI can show "held by you" instead of a conflict.
func (db *DB) ReservedBy(ctx context.Context, days []*models.CalendarDay, userID int64) (bool, error) {
	ids := make(map[int64]struct{})
	for _, d := range days {
		if d.Status == models.DayReserved && d.BookingID != nil {
			ids[*d.BookingID] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return false, nil
	}

	for id := range ids {
		var n int
		err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ? AND user_id = ?`, id, userID).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("failed to check hold ownership: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}
