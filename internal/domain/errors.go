package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation   = errors.New("validation failed")
	ErrProvider     = errors.New("provider error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
)

// ProviderError carries the human-readable text reported by the identity provider.
// Error returns that text unchanged so it can be shown to the user as-is.
type ProviderError struct {
	Msg     string
	Limited bool
}

func (e *ProviderError) Error() string { return e.Msg }

func (e *ProviderError) Is(target error) bool {
	if target == ErrProvider {
		return true
	}
	return e.Limited && target == ErrRateLimited
}

// NewProviderError builds a ProviderError with the given user-facing message.
func NewProviderError(msg string) error {
	return &ProviderError{Msg: msg}
}

// NewRateLimitError builds a ProviderError that also matches ErrRateLimited.
func NewRateLimitError(msg string) error {
	return &ProviderError{Msg: msg, Limited: true}
}

// ValidationError is a locally detected input problem; no provider was contacted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError with the given user-facing message.
func NewValidationError(msg string) error {
	return &ValidationError{Msg: msg}
}
