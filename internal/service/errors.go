package service

import (
	"errors"
	"time"
)

// Login pipeline failures. Handlers map these to status codes; every
// credential-class failure surfaces the same generic message externally so
// callers cannot distinguish a bad password from a missing account or an
// insufficient role.
var (
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrIPBlocked             = errors.New("ip address not allowed")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInsufficientPrivilege = errors.New("insufficient privilege")
	ErrMFARequired           = errors.New("mfa verification required")
	ErrInvalidMFACode        = errors.New("invalid mfa code")
	ErrSessionCreationFailed = errors.New("session creation failed")
	ErrInvalidSession        = errors.New("invalid session")
)

// RateLimitError carries the window reset time alongside ErrRateLimited so
// the handler can tell the caller when to retry.
type RateLimitError struct {
	ResetTime time.Time
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
