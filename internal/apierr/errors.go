// Package apierr defines the small error taxonomy shared between the core
// supervisor/registry packages and the HTTP transport, so the transport can
// map failures to status codes without sniffing error strings.
package apierr

import "fmt"

// Code classifies an error for transport-level handling.
type Code string

const (
	NotFound    Code = "not_found"
	Conflict    Code = "conflict"
	Validation  Code = "validation"
	AuthMissing Code = "auth_missing"
	AuthInvalid Code = "auth_invalid"
	Internal    Code = "internal"
)

// Error is a caller-facing error carrying a short detail string, matching
// the teacher's protocol.Error shape but generalized beyond JSON-RPC.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// New builds an *Error with the given code and detail.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

// Validationf builds a Validation error.
func Validationf(format string, args ...any) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
