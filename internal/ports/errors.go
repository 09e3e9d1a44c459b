package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors surfaced by provider and store
// implementations.
var (
	// ErrRateLimited indicates the back-end throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates the back-end is unreachable or
	// returned a server-side failure.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates a provider call exceeded its own configured
	// deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates the back-end returned a payload the
	// adapter could not interpret.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed indicates the back-end rejected the
	// configured credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrRunNotFound indicates no persisted run exists under a key.
	ErrRunNotFound = errors.New("run not found")
)

// ProviderError wraps a runtime failure of a provider call with enough
// context to record it in a result. The engines capture these into
// QueryResult.Error or ComparisonResult.Errors; they never propagate out
// of an engine to the caller.
type ProviderError struct {
	// Provider is the instance name that failed.
	Provider string

	// Operation names the call that failed, typically "search".
	Operation string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for ProviderError.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: provider=%s, operation=%s, err=%v", e.Provider, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient. Logic errors and
// rejected credentials are not retryable.
func (e *ProviderError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewProviderError creates a ProviderError with the given details.
func NewProviderError(provider, operation string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Operation: operation, Err: err}
}
