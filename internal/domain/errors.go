package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("not found")

	// ErrMissingCredential indicates that a mandatory provider credential
	// is absent. Surfaced at fetcher construction, never retried.
	ErrMissingCredential = errors.New("missing credential")

	// ErrUnknownProvider indicates that no adapter is registered under the
	// requested name.
	ErrUnknownProvider = errors.New("unknown provider")
)

// NotFoundError provides details about a not found record.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// CredentialError provides details about a missing mandatory credential.
type CredentialError struct {
	Provider string
	Hint     string
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s: missing credential: %s", e.Provider, e.Hint)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *CredentialError) Unwrap() error {
	return ErrMissingCredential
}

// NewCredentialError creates a CredentialError.
func NewCredentialError(provider, hint string) *CredentialError {
	return &CredentialError{Provider: provider, Hint: hint}
}

// ExternalAPIError provides details about an HTTP-level provider error.
type ExternalAPIError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewExternalAPIError creates an ExternalAPIError.
func NewExternalAPIError(provider string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
