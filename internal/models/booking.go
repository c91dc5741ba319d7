package models

import "time"

type Booking struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	PropertyID int64     `json:"property_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"` // half-open: [start, end)
	Status     string    `json:"status"`   // pending, confirmed, cancelled, completed, expired
	UnitPrice  float64   `json:"unit_price"`
	Amount     float64   `json:"amount"`
	ServiceFee float64   `json:"service_fee"`
	Source     string    `json:"source"` // direct, auction_win, auction_buy_now
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int64     `json:"version"`
}

// Nights returns the stay length in nights for the half-open interval.
func (b *Booking) Nights() int {
	return len(DaysIn(b.StartDate, b.EndDate))
}
