// Package service holds the error taxonomy shared by the domain services.
package service

import "errors"

// Error kinds. Every domain error wraps exactly one of them so transports can
// map failures to status codes with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error is a domain error with a caller-facing message and a kind.
type Error struct {
	Kind error
	Msg  string
}

// NewError builds a domain error of the given kind.
func NewError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}
