package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrSigningFailed    = errors.New("signing failed")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrLockHeld         = errors.New("lock already held")
	ErrEmptyBook        = errors.New("order book side is empty")
	ErrOrderRejected    = errors.New("order rejected")
	ErrResolutionLookup = errors.New("resolution lookup failed")
	ErrInvalidConfig    = errors.New("invalid configuration")
)
