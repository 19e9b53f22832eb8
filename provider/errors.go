package provider

import (
	"errors"
	"fmt"
)

// ErrInvalidGrant indicates the authorization code or refresh token was
// rejected by the platform. Non-retryable; the login flow must restart.
var ErrInvalidGrant = errors.New("invalid_grant")

// ErrInvalidRefreshToken indicates the refresh token is no longer usable
// (expired, revoked, or malformed). Non-retryable.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// RetryableError wraps a transient failure (5xx response or transport error)
// that may succeed on a subsequent attempt.
type RetryableError struct {
	Err error
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err represents a transient failure that is
// worth retrying.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
