// Package errs defines the coded error type shared by the page driver and the
// fixture application.
package errs

import (
	"errors"
	"net/http"
)

// Code is an error code.
type Code string

// Page driver failures.
const (
	Launch           Code = "launch"
	Navigation       Code = "navigation"
	ElementNotFound  Code = "element_not_found"
	Timeout          Code = "timeout"
	AuthInjection    Code = "auth_injection"
	RequestExecution Code = "request_execution"
)

// Application failures.
const (
	InvalidArgument  Code = "invalid_argument"
	Unauthenticated  Code = "unauthenticated"
	NotFound         Code = "not_found"
	PermissionDenied Code = "permission_denied"
	Unavailable      Code = "unavailable"
	Internal         Code = "internal"
)

// Error is a coded error. Step names the operation that failed, e.g.
// `click "button.green"`, so a failing test points at the exact action.
type Error struct {
	Code    Code
	Step    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Step != "" {
		return e.Step + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// Step creates a coded error attributed to a driver step.
func Step(code Code, step string, cause error) error {
	return &Error{
		Code: code,
		Step: step,
		Err:  cause,
	}
}

// CodeOf returns the outermost error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether any coded error in err's chain carries code.
func Is(err error, code Code) bool {
	for err != nil {
		var coded *Error
		if !errors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.Err
	}
	return false
}

// StepOf returns the first step recorded in err's coded chain.
func StepOf(err error) string {
	for err != nil {
		var coded *Error
		if !errors.As(err, &coded) {
			return ""
		}
		if coded.Step != "" {
			return coded.Step
		}
		err = coded.Err
	}
	return ""
}

// Recode attributes err to step under code. When err already names the same
// step the step is not repeated in the message.
func Recode(code Code, step string, err error) error {
	if StepOf(err) == step {
		return &Error{Code: code, Err: err}
	}
	return Step(code, step, err)
}

// MessageOf returns a user-facing error message.
// Errors without a typed wrapper become "internal error" so raw driver or
// database text never reaches an API response.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// HTTPStatus maps error code to HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case InvalidArgument:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Unavailable:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
