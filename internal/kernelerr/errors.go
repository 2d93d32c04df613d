// Package kernelerr defines the coordination kernel's error taxonomy.
package kernelerr

import "fmt"

// Code identifies the class of failure a kernel operation returns.
type Code string

const (
	Unauthorized     Code = "unauthorized"
	Forbidden        Code = "forbidden"
	NotFound         Code = "not_found"
	Conflict         Code = "conflict"
	CapacityExceeded Code = "capacity_exceeded"
	OutputGateFailed Code = "output_gate_failed"
	Invalid          Code = "invalid"
	Aborted          Code = "aborted"
)

// Error is the typed error returned by kernel components. Handlers translate
// Code to an HTTP status and surface Reason/Hint/Details in the JSON body.
type Error struct {
	Code    Code
	Reason  string
	Hint    string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Code, e.Reason, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func New(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func WithHint(err *Error, hint string) *Error {
	err.Hint = hint
	return err
}

func WithDetails(err *Error, details map[string]any) *Error {
	err.Details = details
	return err
}

func NotFoundf(format string, args ...any) *Error {
	return Newf(NotFound, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return Newf(Conflict, format, args...)
}

func Invalidf(format string, args ...any) *Error {
	return Newf(Invalid, format, args...)
}

// CapacityExceededErr builds the typed 429 payload the claim endpoint requires.
func CapacityExceededErr(current, limit int) *Error {
	return &Error{
		Code:   CapacityExceeded,
		Reason: "account concurrency limit reached",
		Details: map[string]any{
			"current": current,
			"limit":   limit,
		},
	}
}

// As reports whether err is a *Error, mirroring the errors.As convention
// used throughout the store packages for sentinel-ish handling.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
