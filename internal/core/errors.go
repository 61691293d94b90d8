package core

import (
	"errors"

	"github.com/NicolasFrouin/chat/internal/store"
)

// Error codes for domain errors.
const (
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotAuthenticated     = "not_authenticated"
	ErrCodeNotFound             = "not_found"
	ErrCodeValidationFailed     = "validation_failed"
	ErrCodeBadRequest           = "bad_request"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeInternal             = "internal"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrValidationFailed     = errors.New("validation failed")
)

// Messages surfaced to clients for the common failures.
const (
	MsgNotAuthenticated     = "Not authenticated"
	MsgAuthenticationFailed = "User not found and no user data provided"
	MsgInternal             = "Internal server error"
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

// classify maps a service or store error onto the client-facing taxonomy.
func classify(err error) *CoreError {
	var ce *CoreError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrNotAuthenticated):
		return coreError(ErrCodeNotAuthenticated, MsgNotAuthenticated)
	case errors.Is(err, ErrAuthenticationFailed):
		return coreError(ErrCodeAuthenticationFailed, MsgAuthenticationFailed)
	case errors.Is(err, ErrValidationFailed):
		return coreError(ErrCodeValidationFailed, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	default:
		return coreError(ErrCodeInternal, MsgInternal)
	}
}
