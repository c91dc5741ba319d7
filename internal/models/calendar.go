package models

import "time"

// CalendarDay is the single source of truth for per-day occupancy of a
// property. Rows are created lazily and mutated only through the validated
// transition write in the database package.
type CalendarDay struct {
	PropertyID    int64      `json:"property_id"`
	Day           time.Time  `json:"day"`
	Status        string     `json:"status"`
	LockReason    string     `json:"lock_reason,omitempty"`
	BookingID     *int64     `json:"booking_id,omitempty"`
	AuctionID     *int64     `json:"auction_id,omitempty"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DayTransition describes the target state of a single calendar day write.
// Zero-value reference fields mean "cleared".
type DayTransition struct {
	Status        string
	LockReason    string
	BookingID     *int64
	AuctionID     *int64
	HoldExpiresAt *time.Time
}

// RangeCheck is the availability snapshot for a date range.
type RangeCheck struct {
	Free           bool           `json:"available"`
	Reason         string         `json:"reason,omitempty"`
	BlockingDays   []time.Time    `json:"blocking_days,omitempty"`
	HasAuction     bool           `json:"has_auction"`
	ReservedBySelf bool           `json:"reserved_by_self"`
	Days           []*CalendarDay `json:"days,omitempty"`
}

// DaysIn expands a half-open [start, end) interval into day keys.
func DaysIn(start, end time.Time) []time.Time {
	start = Midnight(start)
	end = Midnight(end)

	var days []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Midnight truncates a timestamp to its calendar day in UTC.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
