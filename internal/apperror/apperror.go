// Package apperror defines the domain errors shared by the service and
// handler layers.
//
// Services return *AppError values wrapping one of the sentinel errors below.
// Handlers never look at messages to decide what to do: they use errors.Is
// against the sentinels and errors.As to pull out the human-readable parts.
package apperror

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrPublish      = errors.New("publish failed")
)

// PublishFailedMessage is the only message a submitter sees when the
// publication workflow fails after validation.
const PublishFailedMessage = "We could not publish your listing. Please check your payment details and try again."

// FieldErrors maps a form field name to the message shown next to it.
type FieldErrors map[string]string

// Fields returns the field names in a stable order.
func (f FieldErrors) Fields() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type AppError struct {
	Err     error       // actual error
	Message string      // Human-readable error message
	Field   string      // Optional: field causing the error
	Fields  FieldErrors // Optional: every invalid field of a form submission
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Fields:  FieldErrors{field: message},
	}
}

// Invalid reports several field errors at once. It returns nil when fields is
// empty so callers can write `if err := apperror.Invalid(errs); err != nil`.
func Invalid(fields FieldErrors) *AppError {
	if len(fields) == 0 {
		return nil
	}
	names := fields.Fields()
	return &AppError{
		Err:     ErrValidation,
		Message: fields[names[0]],
		Field:   names[0],
		Fields:  fields,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for bad credentials or a missing session.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// PublishFailed wraps any failure after validation in the publication
// workflow (payment, storage, database). The cause stays reachable through
// errors.Is/As for logging; the message is always the generic one.
func PublishFailed(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrPublish, cause),
		Message: PublishFailedMessage,
	}
}
