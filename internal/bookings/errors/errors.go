package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrDuplicateActive is returned by stores whose uniqueness constraint rejected a second
	// ACTIVE booking for the same user, resource and date.
	ErrDuplicateActive = errors.New("active booking already exists for slot")

	// ErrStatusConflict means a conditional status update found the booking in another state.
	ErrStatusConflict = errors.New("booking status changed concurrently")

	ErrLockNotAcquired = errors.New("slot lock not acquired")
)
