// Package apperr defines the API error taxonomy and maps arbitrary errors onto it.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is a machine-readable error code returned in the response envelope
type Code string

const (
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeNotFound               Code = "NOT_FOUND"
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeConflict               Code = "CONFLICT"
	CodeInternal               Code = "INTERNAL_ERROR"
	CodeRateLimitExceeded      Code = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable     Code = "SERVICE_UNAVAILABLE"
)

// Error is a classified application error
type Error struct {
	Code    Code
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can write errors.Is(err, apperr.ErrConflict)
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Code == e.Code
}

// Status returns the HTTP status for the error's code
func (e *Error) Status() int { return HTTPStatus(e.Code) }

// WithDetails attaches structured details and returns the same error
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// Sentinels for errors.Is matching by code
var (
	ErrAuthenticationRequired = &Error{Code: CodeAuthenticationRequired}
	ErrPermissionDenied       = &Error{Code: CodePermissionDenied}
	ErrNotFound               = &Error{Code: CodeNotFound}
	ErrValidation             = &Error{Code: CodeValidation}
	ErrConflict               = &Error{Code: CodeConflict}
	ErrInternal               = &Error{Code: CodeInternal}
	ErrRateLimitExceeded      = &Error{Code: CodeRateLimitExceeded}
	ErrServiceUnavailable     = &Error{Code: CodeServiceUnavailable}
)

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(entity string) *Error {
	return &Error{Code: CodeNotFound, Message: entity + " not found"}
}

func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(CodePermissionDenied, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return New(CodeAuthenticationRequired, format, args...)
}

func Unavailable(format string, args ...any) *Error {
	return New(CodeServiceUnavailable, format, args...)
}

func Internal(err error, format string, args ...any) *Error {
	return Wrap(CodeInternal, err, format, args...)
}

// HTTPStatus maps an error code to its HTTP status
func HTTPStatus(code Code) int {
	switch code {
	case CodeAuthenticationRequired:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Classify turns any error into an *Error. Typed errors pass through, database
// errors are mapped by vendor code, and everything else by message pattern.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if dbErr, ok := ClassifyDB(err); ok {
		return dbErr
	}
	return &Error{Code: classifyMessage(err.Error()), Message: err.Error(), Err: err}
}

var messagePatterns = []struct {
	code     Code
	patterns []string
}{
	{CodeAuthenticationRequired, []string{"unauthorized", "unauthenticated", "authentication", "not logged in", "token expired", "invalid token"}},
	{CodePermissionDenied, []string{"permission denied", "forbidden", "access denied", "not allowed"}},
	{CodeRateLimitExceeded, []string{"rate limit", "too many requests"}},
	{CodeNotFound, []string{"not found", "does not exist"}},
	{CodeConflict, []string{"already exists", "conflict", "duplicate", "modified by another", "immutable"}},
	{CodeValidation, []string{"invalid", "required", "must be", "must not", "validation", "cannot be"}},
	{CodeServiceUnavailable, []string{"unavailable", "connection refused", "timeout"}},
}

func classifyMessage(msg string) Code {
	lower := strings.ToLower(msg)
	for _, group := range messagePatterns {
		for _, p := range group.patterns {
			if strings.Contains(lower, p) {
				return group.code
			}
		}
	}
	return CodeInternal
}
