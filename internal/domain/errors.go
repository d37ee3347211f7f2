package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")

	ErrRateLimited                = errors.New("rate limited")
	ErrInvalidCode                = errors.New("invalid verification code")
	ErrCodeExpired                = errors.New("verification code expired")
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
	ErrStoreUnavailable           = errors.New("store unavailable")
)

// RateLimitedError is returned when a code is requested inside the cooldown window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
