package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"arenda/internal/models"
)

const bookingColumns = `id, user_id, property_id, start_date, end_date, status,
                 unit_price, amount, service_fee, source, created_at,
                 updated_at, version`

func scanBooking(scan func(dest ...any) error) (*models.Booking, error) {
	var (
		b        models.Booking
		startStr string
		endStr   string
	)
	err := scan(&b.ID, &b.UserID, &b.PropertyID, &startStr, &endStr, &b.Status,
		&b.UnitPrice, &b.Amount, &b.ServiceFee, &b.Source, &b.CreatedAt,
		&b.UpdatedAt, &b.Version)
	if err != nil {
		return nil, err
	}
	if b.StartDate, err = time.ParseInLocation(models.DayFormat, startStr, time.UTC); err != nil {
		return nil, fmt.Errorf("failed to parse booking start date %s: %w", startStr, err)
	}
	if b.EndDate, err = time.ParseInLocation(models.DayFormat, endStr, time.UTC); err != nil {
		return nil, fmt.Errorf("failed to parse booking end date %s: %w", endStr, err)
	}
	return &b, nil
}

func insertBooking(ctx context.Context, q dbtx, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				user_id, property_id, start_date, end_date, status,
				unit_price, amount, service_fee, source, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := q.ExecContext(ctx, query,
		booking.UserID,
		booking.PropertyID,
		booking.StartDate.Format(models.DayFormat),
		booking.EndDate.Format(models.DayFormat),
		booking.Status,
		booking.UnitPrice,
		booking.Amount,
		booking.ServiceFee,
		booking.Source,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// CreateDraftWithHold runs the transactional half of draft placement: sweep
// stale holds on this property, insert the pending booking, re-check every
// day of the stay under the open transaction and reserve the range. The
// caller must already hold the per-property lock. Returns the hold expiry.
// Any failure rolls back fully; a pending booking never survives without its
// reservation.
func (db *DB) CreateDraftWithHold(ctx context.Context, booking *models.Booking, nights int, holdMinutes int, now time.Time) (time.Time, error) {
	if !booking.EndDate.After(booking.StartDate) {
		return time.Time{}, ErrInvalidRange
	}
	if _, err := db.PropertyByID(booking.PropertyID); err != nil {
		return time.Time{}, err
	}
	if holdMinutes <= 0 {
		holdMinutes = models.DefaultHoldMinutes
	}
	days := models.DaysIn(booking.StartDate, booking.EndDate)
	if nights <= 0 {
		nights = len(days)
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Stale holds on this property must not block a fresh attempt.
	if freed, err := reclaimExpiredHolds(ctx, tx, booking.PropertyID, now); err != nil {
		return time.Time{}, err
	} else if freed > 0 {
		db.log.Debug().Int64("property_id", booking.PropertyID).Int("freed", freed).Msg("opportunistic sweep reclaimed holds")
	}

	booking.Status = models.StatusPending
	if booking.Source == "" {
		booking.Source = models.SourceDirect
	}
	booking.Amount = float64(nights) * booking.UnitPrice
	if err := insertBooking(ctx, tx, booking); err != nil {
		return time.Time{}, err
	}

	check, err := checkRange(ctx, tx, booking.PropertyID, booking.StartDate, booking.EndDate, now)
	if err != nil {
		return time.Time{}, err
	}
	if !check.Free {
		return time.Time{}, fmt.Errorf("%w: %s", ErrRangeUnavailable, check.Reason)
	}

	if err := ensureRange(ctx, tx, booking.PropertyID, booking.StartDate, booking.EndDate); err != nil {
		return time.Time{}, err
	}

	holdExpiresAt := now.Add(time.Duration(holdMinutes) * time.Minute)
	transition := models.DayTransition{
		Status:        models.DayReserved,
		LockReason:    models.LockBookingHold,
		BookingID:     &booking.ID,
		HoldExpiresAt: &holdExpiresAt,
	}
	for _, day := range days {
		if err := upsertDay(ctx, tx, booking.PropertyID, day, transition); err != nil {
			return time.Time{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("failed to commit draft placement: %w", err)
	}
	return holdExpiresAt, nil
}

// ReserveRange places a hold for an already-created booking. Days held by
// the same booking are refreshed rather than treated as conflicts.
func (db *DB) ReserveRange(ctx context.Context, propertyID int64, start, end time.Time, bookingID int64, holdMinutes int, now time.Time) (time.Time, error) {
	if !end.After(start) {
		return time.Time{}, ErrInvalidRange
	}
	if _, err := db.PropertyByID(propertyID); err != nil {
		return time.Time{}, err
	}
	if holdMinutes <= 0 {
		holdMinutes = models.DefaultHoldMinutes
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := reclaimExpiredHolds(ctx, tx, propertyID, now); err != nil {
		return time.Time{}, err
	}

	if err := referenceExists(ctx, tx, "bookings", bookingID); err != nil {
		return time.Time{}, err
	}

	existing, err := getRange(ctx, tx, propertyID, start, end)
	if err != nil {
		return time.Time{}, err
	}
	for _, d := range existing {
		if !dayOccupied(d, now) {
			continue
		}
		if d.Status == models.DayReserved && d.BookingID != nil && *d.BookingID == bookingID {
			continue
		}
		return time.Time{}, fmt.Errorf("%w: %s occupied", ErrRangeUnavailable, d.Day.Format(models.DayFormat))
	}

	holdExpiresAt := now.Add(time.Duration(holdMinutes) * time.Minute)
	transition := models.DayTransition{
		Status:        models.DayReserved,
		LockReason:    models.LockBookingHold,
		BookingID:     &bookingID,
		HoldExpiresAt: &holdExpiresAt,
	}
	if err := setRangeStatus(ctx, tx, propertyID, start, end, transition); err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return holdExpiresAt, nil
}

// ConfirmBookingHold promotes a held booking to booked and confirms the
// booking row. Only days still reserved by this booking are written, so a
// partially reclaimed hold cannot steal days that were re-reserved by
// someone else. Fails when the whole hold was already reclaimed.
func (db *DB) ConfirmBookingHold(ctx context.Context, bookingID int64) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBooking(ctx, tx, bookingID)
	if err != nil {
		return err
	}

	held, err := dayKeys(ctx, tx,
		`SELECT day FROM calendar_days WHERE booking_id = ? AND status = 'reserved'`, bookingID)
	if err != nil {
		return err
	}
	if len(held) == 0 {
		return fmt.Errorf("%w: hold for booking %d is gone", ErrRangeUnavailable, bookingID)
	}

	transition := models.DayTransition{Status: models.DayBooked, BookingID: &bookingID}
	for _, day := range held {
		if err := upsertDay(ctx, tx, booking.PropertyID, day, transition); err != nil {
			return err
		}
	}

	if err := updateBookingStatus(ctx, tx, bookingID, models.StatusConfirmed); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit confirmation: %w", err)
	}
	return nil
}

// CancelBooking releases the booking's calendar days and cancels the row.
func (db *DB) CancelBooking(ctx context.Context, bookingID int64) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBooking(ctx, tx, bookingID)
	if err != nil {
		return err
	}

	release := models.DayTransition{Status: models.DayAvailable}
	days, err := dayKeys(ctx, tx, `SELECT day FROM calendar_days WHERE booking_id = ?`, bookingID)
	if err != nil {
		return err
	}

	for _, day := range days {
		if err := upsertDay(ctx, tx, booking.PropertyID, day, release); err != nil {
			return err
		}
	}

	if err := updateBookingStatus(ctx, tx, bookingID, models.StatusCancelled); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return nil
}

func getBooking(ctx context.Context, q dbtx, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(q.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrBookingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func updateBookingStatus(ctx context.Context, q dbtx, id int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ?`
	if _, err := q.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return nil
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db.db, id)
}

// UpdateBookingStatusWithVersion updates status guarded by optimistic version.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.db.ExecContext(ctx, query, status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// GetUserBookings returns a user's bookings, newest first.
func (db *DB) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := db.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
