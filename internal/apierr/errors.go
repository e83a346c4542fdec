// Package apierr provides the unified error taxonomy the trust ledger core
// surfaces to its callers: a stable code string, an HTTP status, and an
// optional detail map, never leaking internal state (stack traces, SQL,
// connection strings) across the boundary.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, caller-facing error identifier.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeDuplicate    Code = "DUPLICATE"
	CodeConflict     Code = "CONFLICT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeConfig       Code = "CONFIG_ERROR"
	CodeStorage      Code = "STORAGE_ERROR"
	CodeDispatch     Code = "DISPATCH_ERROR"
)

var statusByCode = map[Code]int{
	CodeValidation:   http.StatusBadRequest,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeNotFound:     http.StatusNotFound,
	CodeDuplicate:    http.StatusConflict,
	CodeConflict:     http.StatusConflict,
	CodeRateLimited:  http.StatusTooManyRequests,
	CodeConfig:       http.StatusInternalServerError,
	CodeStorage:      http.StatusInternalServerError,
	CodeDispatch:     http.StatusInternalServerError,
}

// Error is a structured error with a stable code, HTTP status, and optional
// detail map. It never carries the underlying error message to the caller
// unless explicitly attached via Wrap.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// WithDetail attaches a detail key/value and returns the same error for
// chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given code with the default HTTP status.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: statusByCode[code]}
}

// Wrap creates an Error of the given code, attaching an internal cause that
// is never serialized to callers but is available via errors.Unwrap/Is for
// logging.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: statusByCode[code], cause: cause}
}

func Validation(field, reason string) *Error {
	return New(CodeValidation, "invalid input").WithDetail("field", field).WithDetail("reason", reason)
}

func Unauthorized(message string) *Error { return New(CodeUnauthorized, message) }

func Forbidden(message string) *Error { return New(CodeForbidden, message) }

func NotFound(resource, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource)).WithDetail("id", id)
}

func Duplicate(message string) *Error { return New(CodeDuplicate, message) }

func Conflict(message string) *Error { return New(CodeConflict, message) }

func RateLimited(message string) *Error { return New(CodeRateLimited, message) }

func Config(message string, cause error) *Error { return Wrap(CodeConfig, message, cause) }

func Storage(message string, cause error) *Error { return Wrap(CodeStorage, message, cause) }

func Dispatch(message string, cause error) *Error { return Wrap(CodeDispatch, message, cause) }

// As reports whether err (or something in its chain) is an *Error, returning
// it if so.
func As(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}
