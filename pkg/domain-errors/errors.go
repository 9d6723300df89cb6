// Package domainerrors provides coded errors for the session and gate domain.
//
// Services return these so callers (transport, the view layer) can branch on a
// stable code instead of string matching. Infrastructure facts (not found,
// unavailable) live in pkg/platform/sentinel; stores return those and services
// translate them into coded errors here.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	// Auth flow outcomes.
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeNotAuthenticated   Code = "not_authenticated"
	CodeAlreadyInProgress  Code = "already_in_progress"

	// External collaborator failures.
	CodeNetwork Code = "network_error"
	CodeServer  Code = "server_error"

	// Local persistence failures.
	CodeStorage Code = "storage_error"

	// Operation not legal in the current session phase.
	CodeInvalidState Code = "invalid_state"

	// General-purpose codes used at trust boundaries.
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeInternal     Code = "internal"
)

// Error is a domain error with a machine-readable code and an optional cause.
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

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is/As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Cause
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal if err is
// not a coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto an HTTP status for transport layers.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidCredentials, CodeNotAuthenticated:
		return http.StatusUnauthorized
	case CodeAlreadyInProgress, CodeInvalidState:
		return http.StatusConflict
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNetwork, CodeServer:
		return http.StatusBadGateway
	case CodeStorage, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
