package model

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every input validation error
var ErrValidation = errors.New("validation failed")

// Common errors used across the application
var (
	// Validation errors
	ErrInvalidID        = fmt.Errorf("%w: invalid identifier", ErrValidation)
	ErrInvalidName      = fmt.Errorf("%w: name is empty after normalization", ErrValidation)
	ErrInvalidEntityID  = fmt.Errorf("%w: entity id must be numeric", ErrValidation)
	ErrInvalidTimestamp = fmt.Errorf("%w: invalid timestamp", ErrValidation)
	ErrInvalidDevice    = fmt.Errorf("%w: invalid device", ErrValidation)
	ErrInvalidTrade     = fmt.Errorf("%w: invalid trade record", ErrValidation)
	ErrInvalidListing   = fmt.Errorf("%w: invalid market listing", ErrValidation)

	// Player errors
	ErrPlayerNotFound = errors.New("player not found")
	ErrPlayerExists   = errors.New("a player with that name already exists")
	ErrSameIdentity   = errors.New("cannot merge a player into itself")

	// Session errors
	ErrSessionNotFound = errors.New("no open session")

	// Group errors
	ErrGroupNotFound = errors.New("group not found")
	ErrNoPollTarget  = errors.New("group has no poll target configured")

	// Device errors
	ErrDeviceNotFound = errors.New("device not found")

	// Analytics errors
	ErrInsufficientData = errors.New("insufficient data")

	// Ingest errors
	ErrStaleEvent = errors.New("event is older than the player's last transition")

	// Transient fetch errors, recovered by retrying on the next tick
	ErrFetchFailed     = errors.New("authoritative fetch failed")
	ErrFeedUnavailable = errors.New("live feed unavailable")
)

// IsValidation reports whether err is an input validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
