package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors raised by configuration, registration, and
// execution paths.
var (
	// ErrDuplicateProvider indicates a registry name collision.
	ErrDuplicateProvider = errors.New("provider already registered")

	// ErrUnknownProvider indicates a lookup for an unregistered tool name.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingCredential indicates a required secret did not resolve.
	ErrMissingCredential = errors.New("missing credential")

	// ErrUnresolvedPlaceholder indicates a ${NAME} option value that no
	// credential source could satisfy.
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

	// ErrInvalidConfiguration indicates configuration that is malformed
	// beyond individual missing values.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// RegistryError reports a failed provider registration. Registration is a
// process-start concern, so these errors are always fatal and loud.
type RegistryError struct {
	// Name is the provider-type name involved in the failure.
	Name string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for RegistryError.
func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry error: name=%q, err=%v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *RegistryError) Unwrap() error { return e.Err }

// NewRegistryError creates a RegistryError for the given name and cause.
func NewRegistryError(name string, err error) *RegistryError {
	return &RegistryError{Name: name, Err: err}
}

// ConfigurationError reports bad or missing settings: unresolved secrets,
// unknown tool names, or rejected provider options. Configuration
// problems are raised before any network call and never degrade silently.
type ConfigurationError struct {
	// Reason describes what is wrong.
	Reason string

	// Missing names the variables that failed to resolve, when the
	// failure is about absent secrets.
	Missing []string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	msg := "configuration error: " + e.Reason
	if len(e.Missing) > 0 {
		msg += ": missing " + strings.Join(e.Missing, ", ")
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a ConfigurationError with the given reason.
func NewConfigurationError(reason string, missing ...string) *ConfigurationError {
	return &ConfigurationError{Reason: reason, Missing: missing}
}

// ValidationError reports malformed input shape, such as a query set whose
// domain does not match the run's. It can accumulate multiple failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the individual validation failure messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError appends a failure message.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors reports whether any failure was recorded.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates an empty ValidationError for the entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: make([]string, 0)}
}

// RunError reports an engine-level failure that prevented a run from
// dispatching any query. Per-query failures are never RunErrors; they are
// captured into the affected QueryResult instead.
type RunError struct {
	// RunID identifies the run, when one was created before the failure.
	RunID string

	// Stage names the engine phase that failed.
	Stage string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for RunError.
func (e *RunError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("run error: stage=%s, err=%v", e.Stage, e.Err)
	}
	return fmt.Sprintf("run error: run=%s, stage=%s, err=%v", e.RunID, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *RunError) Unwrap() error { return e.Err }

// NewRunError creates a RunError for the given stage and cause.
func NewRunError(runID, stage string, err error) *RunError {
	return &RunError{RunID: runID, Stage: stage, Err: err}
}

// EvaluationError reports a failure of the optional LLM judgment stage.
// It is reported separately from retrieval results and never invalidates
// an already-aggregated comparison.
type EvaluationError struct {
	// Model identifies the judge model involved.
	Model string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for EvaluationError.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error: model=%s, err=%v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *EvaluationError) Unwrap() error { return e.Err }

// NewEvaluationError creates an EvaluationError for the given model.
func NewEvaluationError(model string, err error) *EvaluationError {
	return &EvaluationError{Model: model, Err: err}
}
