package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by stores, collaborators and the workflow.
var (
	// ErrNotFound means the term is absent from the store, or no resolver strategy found it
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey means an insert collided with an existing term
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidTransition means a review was requested from a state that does not allow it
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidTerm means the term is empty after normalization
	ErrInvalidTerm = errors.New("invalid term")
)

// ProviderError is a transport, rate-limit or auth failure of an external
// collaborator (knowledge source or LLM). Callers may retry.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err as a provider failure. An error that already is
// a ProviderError is returned unchanged.
func NewProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}

// IsProviderError reports whether err is, or wraps, a ProviderError
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// SchemaViolationError means an LLM response did not conform to the expected
// structured schema. It is fatal for the call and never coerced.
type SchemaViolationError struct {
	Schema string
	Raw    string
	Err    error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("response violates %s schema: %v", e.Schema, e.Err)
}

func (e *SchemaViolationError) Unwrap() error {
	return e.Err
}

// IsSchemaViolation reports whether err is, or wraps, a SchemaViolationError
func IsSchemaViolation(err error) bool {
	var se *SchemaViolationError
	return errors.As(err, &se)
}

// ErrorKind classifies err for callers that map errors to codes
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTerm):
		return "invalid_term"
	case errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrInvalidTransition):
		return "conflict"
	case IsSchemaViolation(err):
		return "schema_violation"
	case IsProviderError(err):
		return "provider_error"
	default:
		return "internal"
	}
}
