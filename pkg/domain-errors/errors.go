// Package domainerrors defines the error taxonomy shared by services and
// transports. Services construct these at the point of failure; the HTTP
// layer translates codes to status codes in one place.
//
// For infrastructure facts (record missing, lost CAS race) stores return
// pkg/platform/sentinel errors instead; services wrap those into a domain
// error before the failure crosses a service boundary.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error. Codes are part of the wire contract: the
// HTTP layer serializes them verbatim in the error envelope.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "storage_timeout"
	CodeInternal     Code = "internal_error"
)

// Error carries a code, a human-readable message, and optionally the
// underlying cause for errors.Is/As chains.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs a domain error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error so callers can
// still reach the cause via errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err (or anything it wraps) is a domain error with the
// given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in this taxonomy.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the caller may retry the operation with backoff.
func Retryable(err error) bool {
	return Is(err, CodeTimeout)
}

// ToHTTPStatus maps a code to the HTTP status used by the error envelope.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
