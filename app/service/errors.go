package service

import (
	"errors"

	"github.com/vibast-solutions/ms-go-identity/app/repository"
)

var (
	ErrDuplicateEmail        = errors.New("email is already registered")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountNotFound       = errors.New("account not found")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrPasswordMismatch      = errors.New("old password is incorrect")
	ErrTooManyAttempts       = errors.New("too many attempts, try again later")
	ErrEmailDeliveryFailed   = errors.New("email delivery failed")

	ErrStoreUnavailable = repository.ErrStoreUnavailable
	ErrStoreTimeout     = repository.ErrStoreTimeout
)

// IsRetryable reports whether err is transient and the operation may be
// attempted again unchanged.
func IsRetryable(err error) bool {
	return repository.IsRetryable(err)
}
