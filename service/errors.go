package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error a service method returns on purpose unwraps to one of
// these; anything else is an internal failure.
var (
	ErrValidation      = errors.New("invalid input")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("not authorized")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")
)

// Error carries a message that is safe to show to the caller.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func notFound(what string) error {
	return newError(ErrNotFound, "%s not found", what)
}
