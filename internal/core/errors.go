package core

import (
	"errors"

	"github.com/deltadefenders/farmchat-server/internal/service"
)

// Error codes for domain errors.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeValidation   = "validation_error"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeNotInRoom    = "not_in_room"
	ErrCodeInternal     = "internal"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorFromService maps a service failure onto a client-facing error.
// Unclassified errors are reported as internal without leaking details.
func ErrorFromService(err error) *CoreError {
	var svcErr *service.Error
	msg := "internal error"
	if errors.As(err, &svcErr) {
		msg = svcErr.Msg
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		return coreError(ErrCodeValidation, msg)
	case errors.Is(err, service.ErrNotFound):
		return coreError(ErrCodeNotFound, msg)
	case errors.Is(err, service.ErrForbidden):
		return coreError(ErrCodeForbidden, msg)
	case errors.Is(err, service.ErrUnauthorized):
		return coreError(ErrCodeUnauthorized, msg)
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
