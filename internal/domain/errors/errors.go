package errors

import (
	"errors"
	"fmt"
)

var (
	// Payout errors
	ErrPayoutNotFound         = errors.New("payout not found")
	ErrPayoutAlreadyExists    = errors.New("payout already exists for seller and order")
	ErrPayoutAlreadyFailed    = errors.New("payout already failed")
	ErrPayoutInProgress       = errors.New("payout is already being processed")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrUnsupportedCurrency    = errors.New("unsupported currency")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Order errors
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotDelivered = errors.New("order is not delivered")

	// Ledger errors
	ErrLedgerEntryExists = errors.New("ledger entry already exists")

	// Provider errors
	ErrProviderTransient     = errors.New("provider transient failure")
	ErrProviderRejected      = errors.New("payout rejected by provider")
	ErrProviderMisconfigured = errors.New("provider misconfigured")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Is lets callers match any field failure with errors.Is(err, ErrValidationFailed).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ProviderErrorKind classifies a provider failure.
type ProviderErrorKind string

const (
	// KindTransient covers timeouts, transport errors, 5xx, 408, 429 and an open breaker.
	KindTransient ProviderErrorKind = "transient"
	// KindRejected is a definitive decline. Retrying cannot change the outcome.
	KindRejected ProviderErrorKind = "rejected"
	// KindMisconfigured is only produced while constructing a provider.
	KindMisconfigured ProviderErrorKind = "misconfigured"
)

// ProviderError is the only error shape a provider returns.
type ProviderError struct {
	Kind       ProviderErrorKind
	Provider   string
	Reason     string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s provider %s: %s", e.Provider, e.Kind, e.Reason)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels so callers can use errors.Is(err, ErrProviderRejected).
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrProviderTransient:
		return e.Kind == KindTransient
	case ErrProviderRejected:
		return e.Kind == KindRejected
	case ErrProviderMisconfigured:
		return e.Kind == KindMisconfigured
	}
	return false
}

// NewTransientError creates a retryable provider error
func NewTransientError(provider, reason string, statusCode int, err error) *ProviderError {
	return &ProviderError{Kind: KindTransient, Provider: provider, Reason: reason, StatusCode: statusCode, Err: err}
}

// NewRejectedError creates a terminal provider error
func NewRejectedError(provider, reason string, statusCode int) *ProviderError {
	return &ProviderError{Kind: KindRejected, Provider: provider, Reason: reason, StatusCode: statusCode}
}

// NewMisconfiguredError creates a construction-time provider error
func NewMisconfiguredError(provider, reason string) *ProviderError {
	return &ProviderError{Kind: KindMisconfigured, Provider: provider, Reason: reason}
}
