package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed failure carrying the HTTP status it maps to.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so wrapped clones still compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches a cause to a sentinel, keeping its code and status.
func Wrap(err error, sentinel *Error, message string) *Error {
	if message == "" {
		message = sentinel.Message
	}
	return &Error{Code: sentinel.Code, Status: sentinel.Status, Message: message, Err: err}
}

var (
	ErrStartup            = New("STARTUP_ERROR", http.StatusInternalServerError, "startup failed")
	ErrAccessDenied       = New("ACCESS_DENIED", http.StatusForbidden, "access denied")
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid credentials")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrStorage            = New("STORAGE_ERROR", http.StatusInternalServerError, "storage unavailable")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNotRequired        = New("NOT_REQUIRED", http.StatusUnprocessableEntity, "attendance not required now")
	ErrRateLimited        = New("RATE_LIMITED", http.StatusTooManyRequests, "rate limit")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Storage wraps a driver failure as a StorageError.
func Storage(err error, op string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, ErrStorage, op)
}

// Validation builds a validation error with a custom message.
func Validation(message string) *Error {
	return Wrap(nil, ErrValidation, message)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal, "")
}
