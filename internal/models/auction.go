package models

import "time"

type Auction struct {
	ID              int64     `json:"id"`
	PropertyID      int64     `json:"property_id"`
	StayPeriodStart time.Time `json:"stay_period_start"`
	StayPeriodEnd   time.Time `json:"stay_period_end"` // half-open
	Status          string    `json:"status"`          // active, ended, cancelled
	CurrentPrice    float64   `json:"current_price"`
	MaxBidID        *int64    `json:"max_bid_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
