package core

import (
	"errors"
)

var (
	// ErrNotFound is returned by stores when no matching row exists.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidNumber is returned when a phone number fails validation
	// before aggregation begins.
	ErrInvalidNumber = errors.New("invalid phone number")

	// ErrInvalidCode is returned when no matching, unused, unexpired
	// verification code exists.
	ErrInvalidCode = errors.New("invalid or expired verification code")

	// ErrRateLimited is returned when a number exceeds the verification
	// attempt budget.
	ErrRateLimited = errors.New("verification rate limit exceeded")
)
