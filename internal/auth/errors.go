package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPhone is returned when the phone number cannot be normalized.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrUserNotFound is returned when verifying a phone number with no user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidOrExpiredCode is returned when no unexpired code matches.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired OTP")
	// ErrRateLimited is returned when a phone number requested too many codes.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrTooManyAttempts is returned once a phone number used up its verify attempts.
	ErrTooManyAttempts = errors.New("too many verification attempts")
)

// StorageError reports a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DeliveryError reports a failed SMS delivery. The code it was carrying has
// already been persisted and stays valid until it expires.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failure: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
