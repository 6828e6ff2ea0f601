package errors

import (
	"errors"
	"fmt"
	"time"
)

// Common application errors with proper types for error handling

var (
	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates the caller exhausted its submission quota
	ErrRateLimited = errors.New("rate limited")

	// ErrNotConfigured indicates required provider secrets are missing
	ErrNotConfigured = errors.New("not configured")

	// ErrProviderFailure indicates the email provider rejected or failed a send
	ErrProviderFailure = errors.New("provider failure")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrDeliveryUnconfirmed indicates the caller stopped waiting while the
	// provider may still deliver the message
	ErrDeliveryUnconfirmed = errors.New("delivery unconfirmed")
)

// RateLimitError carries how long the caller has to wait before the next attempt
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RateLimited creates a rate limit error with the remaining wait
func RateLimited(retryAfter time.Duration) error {
	return &RateLimitError{RetryAfter: retryAfter}
}

// NotConfiguredError creates a configuration error naming what is missing
func NotConfiguredError(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotConfigured)
}

// ProviderError wraps a provider-side message. Error() returns the provider's text
// so it can be surfaced to the caller unchanged.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return ErrProviderFailure
}

// InvalidInputError creates an invalid input error with context
func InvalidInputError(field, reason string) error {
	return fmt.Errorf("%s: %s: %w", field, reason, ErrInvalidInput)
}

// InternalError creates an internal error with context
func InternalError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInternal)
}

// Is checks if an error matches a target error (works with wrapped errors)
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
