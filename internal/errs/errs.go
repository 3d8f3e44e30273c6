// Package errs defines the error kinds shared by the matching and assistant pipeline.
package errs

import (
	"errors"
	"fmt"
)

// ProviderError reports a failed or timed-out call to an external provider
// (embedding or completion).
type ProviderError struct {
	Provider string // "embedding", "completion", "image"
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s provider %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a referenced item, candidate or match that is missing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ValidationError reports malformed input that cannot be normalised to a safe default.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Provider(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
