// Package domainerrors provides code-based errors shared across services.
//
// Services return these so transport layers can translate them into HTTP
// statuses without inspecting error strings. Stores return sentinel errors
// (pkg/platform/sentinel) and services wrap them with a code here.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and logging.
type Code string

const (
	// CodeNotFound signals a missing record, rule, or file.
	CodeNotFound Code = "not_found"
	// CodeBadRequest signals a malformed or incomplete request.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput signals input that fails domain validation
	// (unsupported file format, missing date column, no valid dates,
	// verification not required for a file type).
	CodeInvalidInput Code = "invalid_input"
	// CodeUnauthorized signals a missing, invalid, or expired credential.
	CodeUnauthorized Code = "unauthorized"
	// CodeConflict signals a uniqueness or state conflict.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation signals a broken aggregate invariant.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeProviderUnavailable covers both provider misconfiguration and
	// provider network/HTTP failures. The two are deliberately not
	// distinguished; the message text disambiguates for the operator.
	CodeProviderUnavailable Code = "provider_unavailable"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability in handlers.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the human-readable message, defaulting to a generic one
// so internal error details never leak to clients.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeConflict, CodeInvariantViolation:
		return http.StatusConflict
	case CodeProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
