package models

// Calendar day statuses.
const (
	DayAvailable = "available"
	DayReserved  = "reserved"
	DayBooked    = "booked"
	DayBlocked   = "blocked"
)

// Lock reasons for non-available days.
const (
	LockBookingHold  = "booking_hold"
	LockManual       = "manual"
	LockAuction      = "auction"
	LockExternalSync = "external_sync"
)

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// Booking sources.
const (
	SourceDirect        = "direct"
	SourceAuctionWin    = "auction_win"
	SourceAuctionBuyNow = "auction_buy_now"
)

// Auction statuses.
const (
	AuctionActive    = "active"
	AuctionEnded     = "ended"
	AuctionCancelled = "cancelled"
)

const (
	// DayFormat is the canonical calendar day key.
	DayFormat = "2006-01-02"

	// DefaultHoldMinutes applies when a draft request omits hold duration.
	DefaultHoldMinutes = 30

	// DefaultLockWaitSeconds bounds the per-property lock acquisition.
	DefaultLockWaitSeconds = 10

	// DefaultSweepIntervalSeconds between periodic expiry sweeps.
	DefaultSweepIntervalSeconds = 60
)
