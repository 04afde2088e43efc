package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrInvalidToken          = errors.New("invalid or expired token")
	ErrRoleRequired          = errors.New("a role must be assigned before this action")
	ErrInvalidRole           = errors.New("role must be vendor or investor")
	ErrForbidden             = errors.New("forbidden")
	ErrAmountNotPositive     = errors.New("amount must be greater than zero")
	ErrAmountTooSmall        = errors.New("amount is below the minimum contribution")
	ErrCampaignNotActive     = errors.New("campaign is not accepting contributions")
	ErrPaymentNotConfigured  = errors.New("payment settings are not configured")
	ErrEmptyMessage          = errors.New("message body is empty")
	ErrMessageTooLong        = errors.New("message body is too long")
	ErrSelfMessage           = errors.New("cannot message yourself")
	ErrPostNotFound          = errors.New("scheduled post not found")
	ErrConnectionExists      = errors.New("connection request already sent")
	ErrConnectionNotFound    = errors.New("connection request not found")
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrMediaStoreUnavailable = errors.New("media storage is not configured")
)

// RateLimitError is returned when a caller exceeds a rate limit.
type RateLimitError struct {
	Scope             string
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s; retry in %ds", e.Scope, e.RetryAfterSeconds)
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
