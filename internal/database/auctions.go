package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"arenda/internal/models"
)

const auctionColumns = `id, property_id, stay_start, stay_end, status, current_price, max_bid_id, created_at, updated_at`

func scanAuction(scan func(dest ...any) error) (*models.Auction, error) {
	var (
		a        models.Auction
		startStr string
		endStr   string
	)
	err := scan(&a.ID, &a.PropertyID, &startStr, &endStr, &a.Status, &a.CurrentPrice, &a.MaxBidID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.StayPeriodStart, err = time.ParseInLocation(models.DayFormat, startStr, time.UTC); err != nil {
		return nil, fmt.Errorf("failed to parse auction stay start %s: %w", startStr, err)
	}
	if a.StayPeriodEnd, err = time.ParseInLocation(models.DayFormat, endStr, time.UTC); err != nil {
		return nil, fmt.Errorf("failed to parse auction stay end %s: %w", endStr, err)
	}
	return &a, nil
}

// CreateAuction inserts an auction row. The calendar is not touched until
// BlockForAuction.
func (db *DB) CreateAuction(ctx context.Context, auction *models.Auction) error {
	if !auction.StayPeriodEnd.After(auction.StayPeriodStart) {
		return ErrInvalidRange
	}
	if _, err := db.PropertyByID(auction.PropertyID); err != nil {
		return err
	}
	if auction.Status == "" {
		auction.Status = models.AuctionActive
	}

	query := `INSERT INTO auctions (property_id, stay_start, stay_end, status, current_price, max_bid_id, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.db.ExecContext(ctx, query,
		auction.PropertyID,
		auction.StayPeriodStart.Format(models.DayFormat),
		auction.StayPeriodEnd.Format(models.DayFormat),
		auction.Status,
		auction.CurrentPrice,
		auction.MaxBidID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	auction.ID = id
	auction.CreatedAt = now
	auction.UpdatedAt = now
	return nil
}

// GetAuction returns an auction by id.
func (db *DB) GetAuction(ctx context.Context, id int64) (*models.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`
	a, err := scanAuction(db.db.QueryRowContext(ctx, query, id).Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrAuctionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return a, nil
}

// BlockForAuction blocks the auction's stay window with lock_reason=auction
// through the same transition path used by bookings. The caller must hold
// the per-property lock. Fails with ErrRangeUnavailable when any day of the
// window is occupied.
func (db *DB) BlockForAuction(ctx context.Context, auctionID int64, now time.Time) error {
	auction, err := db.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := reclaimExpiredHolds(ctx, tx, auction.PropertyID, now); err != nil {
		return err
	}

	check, err := checkRange(ctx, tx, auction.PropertyID, auction.StayPeriodStart, auction.StayPeriodEnd, now)
	if err != nil {
		return err
	}
	if !check.Free {
		return fmt.Errorf("%w: %s", ErrRangeUnavailable, check.Reason)
	}

	transition := models.DayTransition{
		Status:     models.DayBlocked,
		LockReason: models.LockAuction,
		AuctionID:  &auctionID,
	}
	if err := setRangeStatus(ctx, tx, auction.PropertyID, auction.StayPeriodStart, auction.StayPeriodEnd, transition); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit auction block: %w", err)
	}
	return nil
}

// ResolveAuction finishes an active auction's hold on the calendar. With a
// winner booking the auction's blocked days become booked and the booking is
// confirmed with the given source (auction_win or auction_buy_now); without
// one the days return to available and the auction is cancelled. Only days
// still carrying this auction's block are written, and a non-active auction
// fails the resolution, so a late or duplicate resolve cannot overwrite
// whatever took the window after cancellation.
func (db *DB) ResolveAuction(ctx context.Context, auctionID int64, winnerBookingID *int64, source string) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	auction, err := scanAuction(tx.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, auctionID).Scan)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: id %d", ErrAuctionNotFound, auctionID)
	}
	if err != nil {
		return fmt.Errorf("failed to get auction: %w", err)
	}
	if auction.Status != models.AuctionActive {
		return fmt.Errorf("%w: auction %d is already %s", ErrInvalidTransition, auctionID, auction.Status)
	}

	var transition models.DayTransition
	auctionStatus := models.AuctionCancelled
	if winnerBookingID != nil {
		transition = models.DayTransition{Status: models.DayBooked, BookingID: winnerBookingID}
		auctionStatus = models.AuctionEnded
	} else {
		transition = models.DayTransition{Status: models.DayAvailable}
	}

	days, err := dayKeys(ctx, tx, `SELECT day FROM calendar_days WHERE auction_id = ?`, auctionID)
	if err != nil {
		return err
	}
	for _, day := range days {
		if err := upsertDay(ctx, tx, auction.PropertyID, day, transition); err != nil {
			return err
		}
	}

	if winnerBookingID != nil {
		query := `UPDATE bookings SET status = ?, source = ?, version = version + 1, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, models.StatusConfirmed, source, time.Now().UTC(), *winnerBookingID); err != nil {
			return fmt.Errorf("failed to confirm winner booking: %w", err)
		}
	}

	query := `UPDATE auctions SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, auctionStatus, time.Now().UTC(), auctionID); err != nil {
		return fmt.Errorf("failed to update auction status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit auction resolution: %w", err)
	}
	return nil
}
