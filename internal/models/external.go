package models

import "time"

// ExternalBlock is a host-maintained blocked range imported from an external
// calendar feed. Applied as blocked/external_sync days.
type ExternalBlock struct {
	PropertyUID string    `json:"property_uid"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"` // half-open
	Note        string    `json:"note,omitempty"`
}
