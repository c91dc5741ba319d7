package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"arenda/internal/models"
)

// normalizeTransition enforces the field-consistency table for a target
// status and returns the transition with its cleared fields zeroed. Legality
// is defined per target state, not by a fixed transition graph.
func normalizeTransition(t models.DayTransition) (models.DayTransition, error) {
	switch t.Status {
	case models.DayAvailable:
		t.BookingID = nil
		t.AuctionID = nil
		t.LockReason = ""
		t.HoldExpiresAt = nil

	case models.DayReserved:
		if t.LockReason != models.LockBookingHold {
			return t, fmt.Errorf("%w: reserved requires lock_reason=booking_hold, got %q", ErrInvalidTransition, t.LockReason)
		}
		if t.BookingID == nil {
			return t, fmt.Errorf("%w: reserved requires booking_id", ErrInvalidTransition)
		}
		if t.HoldExpiresAt == nil {
			return t, fmt.Errorf("%w: reserved requires hold_expires_at", ErrInvalidTransition)
		}
		t.AuctionID = nil

	case models.DayBooked:
		if t.BookingID == nil {
			return t, fmt.Errorf("%w: booked requires booking_id", ErrInvalidTransition)
		}
		t.LockReason = ""
		t.HoldExpiresAt = nil
		t.AuctionID = nil

	case models.DayBlocked:
		switch t.LockReason {
		case models.LockAuction:
			if t.AuctionID == nil {
				return t, fmt.Errorf("%w: auction block requires auction_id", ErrInvalidTransition)
			}
			t.BookingID = nil
			t.HoldExpiresAt = nil
		case models.LockManual, models.LockExternalSync:
			t.BookingID = nil
			t.AuctionID = nil
			t.HoldExpiresAt = nil
		default:
			return t, fmt.Errorf("%w: blocked requires lock_reason in (auction, manual, external_sync), got %q", ErrInvalidTransition, t.LockReason)
		}

	default:
		return t, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, t.Status)
	}

	return t, nil
}

// upsertDay is the single validated write path for calendar state. It checks
// field consistency, verifies booking/auction references and writes the row,
// creating it if missing.
func upsertDay(ctx context.Context, q dbtx, propertyID int64, day time.Time, t models.DayTransition) error {
	t, err := normalizeTransition(t)
	if err != nil {
		return err
	}

	if t.BookingID != nil {
		if err := referenceExists(ctx, q, "bookings", *t.BookingID); err != nil {
			return err
		}
	}
	if t.AuctionID != nil {
		if err := referenceExists(ctx, q, "auctions", *t.AuctionID); err != nil {
			return err
		}
	}

	var lockReason any
	if t.LockReason != "" {
		lockReason = t.LockReason
	}

	query := `INSERT INTO calendar_days (property_id, day, status, lock_reason, booking_id, auction_id, hold_expires_at, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(property_id, day) DO UPDATE SET
                  status = excluded.status,
                  lock_reason = excluded.lock_reason,
                  booking_id = excluded.booking_id,
                  auction_id = excluded.auction_id,
                  hold_expires_at = excluded.hold_expires_at,
                  updated_at = excluded.updated_at`
	now := time.Now().UTC()
	_, err = q.ExecContext(ctx, query,
		propertyID,
		day.Format(models.DayFormat),
		t.Status,
		lockReason,
		t.BookingID,
		t.AuctionID,
		t.HoldExpiresAt,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert calendar day: %w", err)
	}
	return nil
}

func referenceExists(ctx context.Context, q dbtx, table string, id int64) error {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, table)
	if err := q.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to check %s reference: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s id %d", ErrDanglingReference, table, id)
	}
	return nil
}

// ensureRange backfills missing days of [start, end) as available without
// touching existing rows. Idempotent.
func ensureRange(ctx context.Context, q dbtx, propertyID int64, start, end time.Time) error {
	query := `INSERT OR IGNORE INTO calendar_days (property_id, day, status, created_at, updated_at)
              VALUES (?, ?, 'available', ?, ?)`
	now := time.Now().UTC()
	for _, day := range models.DaysIn(start, end) {
		if _, err := q.ExecContext(ctx, query, propertyID, day.Format(models.DayFormat), now, now); err != nil {
			return fmt.Errorf("failed to ensure calendar day %s: %w", day.Format(models.DayFormat), err)
		}
	}
	return nil
}

// setRangeStatus applies one transition to every day of [start, end),
// creating missing rows first.
func setRangeStatus(ctx context.Context, q dbtx, propertyID int64, start, end time.Time, t models.DayTransition) error {
	if err := ensureRange(ctx, q, propertyID, start, end); err != nil {
		return err
	}
	for _, day := range models.DaysIn(start, end) {
		if err := upsertDay(ctx, q, propertyID, day, t); err != nil {
			return err
		}
	}
	return nil
}

const calendarColumns = `property_id, day, status, COALESCE(lock_reason, ''), booking_id, auction_id, hold_expires_at, created_at, updated_at`

func scanCalendarDay(scan func(dest ...any) error) (*models.CalendarDay, error) {
	var (
		d       models.CalendarDay
		dayStr  string
		expires sql.NullTime
	)
	err := scan(&d.PropertyID, &dayStr, &d.Status, &d.LockReason, &d.BookingID, &d.AuctionID, &expires, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Day, err = time.ParseInLocation(models.DayFormat, dayStr, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar day %s: %w", dayStr, err)
	}
	if expires.Valid {
		t := expires.Time
		d.HoldExpiresAt = &t
	}
	return &d, nil
}

func getRange(ctx context.Context, q dbtx, propertyID int64, start, end time.Time) ([]*models.CalendarDay, error) {
	query := `SELECT ` + calendarColumns + `
              FROM calendar_days
              WHERE property_id = ? AND day >= ? AND day < ?
              ORDER BY day ASC`
	rows, err := q.QueryContext(ctx, query, propertyID, start.Format(models.DayFormat), end.Format(models.DayFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar range: %w", err)
	}
	defer rows.Close()

	var days []*models.CalendarDay
	for rows.Next() {
		d, err := scanCalendarDay(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// dayKeys runs a query whose single column is a calendar day key and parses
// the result.
func dayKeys(ctx context.Context, q dbtx, query string, args ...any) ([]time.Time, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var dayStr string
		if err := rows.Scan(&dayStr); err != nil {
			return nil, fmt.Errorf("failed to scan calendar day: %w", err)
		}
		day, err := time.ParseInLocation(models.DayFormat, dayStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("failed to parse calendar day %s: %w", dayStr, err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// UpsertDay is the exported validated single-day write.
func (db *DB) UpsertDay(ctx context.Context, propertyID int64, day time.Time, t models.DayTransition) error {
	if _, err := db.PropertyByID(propertyID); err != nil {
		return err
	}
	return upsertDay(ctx, db.db, propertyID, day, t)
}

// EnsureRange backfills [start, end) as available, never touching existing rows.
func (db *DB) EnsureRange(ctx context.Context, propertyID int64, start, end time.Time) error {
	if end.Before(start) || end.Equal(start) {
		return ErrInvalidRange
	}
	if _, err := db.PropertyByID(propertyID); err != nil {
		return err
	}
	return ensureRange(ctx, db.db, propertyID, start, end)
}

// GetRange returns existing calendar rows of [start, end), oldest first.
func (db *DB) GetRange(ctx context.Context, propertyID int64, start, end time.Time) ([]*models.CalendarDay, error) {
	return getRange(ctx, db.db, propertyID, start, end)
}

// GetDay returns a single calendar row or nil when absent.
func (db *DB) GetDay(ctx context.Context, propertyID int64, day time.Time) (*models.CalendarDay, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendar_days WHERE property_id = ? AND day = ?`
	d, err := scanCalendarDay(db.db.QueryRowContext(ctx, query, propertyID, day.Format(models.DayFormat)).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar day: %w", err)
	}
	return d, nil
}

// BlockRange places an administrative block over [start, end). Reason must
// be manual or external_sync; auction blocks go through BlockForAuction.
// Mirrors the admin flow: the block overrides whatever the days held.
func (db *DB) BlockRange(ctx context.Context, propertyID int64, start, end time.Time, reason string) error {
	if !end.After(start) {
		return ErrInvalidRange
	}
	if _, err := db.PropertyByID(propertyID); err != nil {
		return err
	}
	if reason != models.LockManual && reason != models.LockExternalSync {
		return fmt.Errorf("%w: admin block reason %q", ErrInvalidTransition, reason)
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	transition := models.DayTransition{Status: models.DayBlocked, LockReason: reason}
	if err := setRangeStatus(ctx, tx, propertyID, start, end, transition); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit block: %w", err)
	}
	return nil
}

// UnblockRange releases administratively blocked days back to available,
// leaving days held for other reasons untouched.
func (db *DB) UnblockRange(ctx context.Context, propertyID int64, start, end time.Time) error {
	if !end.After(start) {
		return ErrInvalidRange
	}
	if _, err := db.PropertyByID(propertyID); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	days, err := getRange(ctx, tx, propertyID, start, end)
	if err != nil {
		return err
	}
	release := models.DayTransition{Status: models.DayAvailable}
	for _, d := range days {
		if d.Status != models.DayBlocked || d.LockReason == models.LockAuction {
			continue
		}
		if err := upsertDay(ctx, tx, propertyID, d.Day, release); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unblock: %w", err)
	}
	return nil
}

// DaysByBooking returns the calendar rows currently owned by a booking.
func (db *DB) DaysByBooking(ctx context.Context, bookingID int64) ([]*models.CalendarDay, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendar_days WHERE booking_id = ? ORDER BY day ASC`
	rows, err := db.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get days by booking: %w", err)
	}
	defer rows.Close()

	var days []*models.CalendarDay
	for rows.Next() {
		d, err := scanCalendarDay(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
