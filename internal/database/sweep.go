package database

import (
	"context"
	"fmt"
	"time"

	"arenda/internal/models"
)

// reclaimExpiredHolds frees reserved days whose hold expired before now.
// propertyID 0 means all properties. Returns the number of freed days.
func reclaimExpiredHolds(ctx context.Context, q dbtx, propertyID int64, now time.Time) (int, error) {
	query := `UPDATE calendar_days
              SET status = 'available', lock_reason = NULL, booking_id = NULL,
                  auction_id = NULL, hold_expires_at = NULL, updated_at = ?
              WHERE status = 'reserved' AND hold_expires_at IS NOT NULL AND hold_expires_at < ?`
	args := []any{time.Now().UTC(), now}
	if propertyID != 0 {
		query += ` AND property_id = ?`
		args = append(args, propertyID)
	}

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired holds: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// ReclaimExpiredHolds transitions every expired hold back to available.
// Idempotent; safe to run periodically and opportunistically.
func (db *DB) ReclaimExpiredHolds(ctx context.Context, now time.Time) (int, error) {
	return reclaimExpiredHolds(ctx, db.db, 0, now)
}

// ExpirePendingBookings marks pending bookings created before cutoff whose
// calendar coverage is gone as expired. Companion pass to
// ReclaimExpiredHolds; booking-side bookkeeping only.
func (db *DB) ExpirePendingBookings(ctx context.Context, cutoff time.Time) (int, error) {
	query := `UPDATE bookings
              SET status = ?, version = version + 1, updated_at = ?
              WHERE status = ?
                AND NOT EXISTS (SELECT 1 FROM calendar_days cd WHERE cd.booking_id = bookings.id)
                AND created_at < ?`
	result, err := db.db.ExecContext(ctx, query, models.StatusExpired, time.Now().UTC(), models.StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending bookings: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
