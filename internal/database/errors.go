package database

import "errors"

// Recoverable failures: the caller retries or shows fresh availability.
var (
	ErrInvalidRange     = errors.New("invalid date range: end must be after start")
	ErrLockTimeout      = errors.New("property lock acquisition timed out")
	ErrRangeUnavailable = errors.New("date range is not available")
	ErrPastDate         = errors.New("stay cannot start in the past")
	ErrDateTooFar       = errors.New("stay starts too far in the future")
)

// Fatal failures: data-integrity or programming faults, never retried.
var (
	ErrInvalidTransition      = errors.New("invalid calendar state transition")
	ErrDanglingReference      = errors.New("calendar day references a missing row")
	ErrUnknownProperty        = errors.New("property not found")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrAuctionNotFound        = errors.New("auction not found")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)

// Recoverable reports whether the caller may retry or correct the request.
func Recoverable(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrRangeUnavailable) ||
		errors.Is(err, ErrPastDate) ||
		errors.Is(err, ErrDateTooFar)
}
