// Package apperror defines the error taxonomy shared by the store, the access
// service and the HTTP layer.
//
// Every typed error carries one of the sentinel values below as its cause, so
// callers can branch with errors.Is no matter how many times the error was
// wrapped on the way up.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("Validation Error")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInvite = errors.New("invalid invite")
	ErrUnavailable   = errors.New("store unavailable")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
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

// InvalidInvite is returned when an invite code does not exist or has
// already been redeemed. The two cases are deliberately indistinguishable.
func InvalidInvite(code string) *AppError {
	return &AppError{
		Err:     ErrInvalidInvite,
		Message: fmt.Sprintf("invite %q is invalid or already used", code),
	}
}

// Unavailable wraps a storage failure. The cause is kept in the message for
// logs only; handlers never echo it to the client.
func Unavailable(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: fmt.Sprintf("%s: %v", op, cause),
	}
}
