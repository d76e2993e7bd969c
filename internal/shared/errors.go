package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLockNotAcquired occurs when a tenant lock cannot be obtained in time.
	ErrLockNotAcquired = errors.New("tenant lock not acquired")
)
