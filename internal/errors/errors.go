// Package errors provides a structured application error type used across
// the orchestrator: every error that crosses a package boundary carries a
// classification, an HTTP status mapping, and an optional wrapped cause.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError for status-code mapping, safe-message
// selection, and routing decisions (see internal/errors taxonomy table in
// SPEC_FULL.md §7).
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeDatabase      ErrorType = "database"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeQAFailure     ErrorType = "qa_failure"
	ErrorTypeSafety        ErrorType = "safety_violation"
	ErrorTypeBudget        ErrorType = "budget_exhausted"
	ErrorTypeBoundary      ErrorType = "boundary_violation"
	ErrorTypeUnrecoverable ErrorType = "unrecoverable"
)

var statusByType = map[ErrorType]int{
	ErrorTypeValidation:    http.StatusBadRequest,
	ErrorTypeAuth:          http.StatusUnauthorized,
	ErrorTypeNotFound:      http.StatusNotFound,
	ErrorTypeConflict:      http.StatusConflict,
	ErrorTypeTimeout:       http.StatusRequestTimeout,
	ErrorTypeRateLimit:     http.StatusTooManyRequests,
	ErrorTypeDatabase:      http.StatusInternalServerError,
	ErrorTypeNetwork:       http.StatusInternalServerError,
	ErrorTypeInternal:      http.StatusInternalServerError,
	ErrorTypeQAFailure:     http.StatusUnprocessableEntity,
	ErrorTypeSafety:        http.StatusForbidden,
	ErrorTypeBudget:        http.StatusPaymentRequired,
	ErrorTypeBoundary:      http.StatusForbidden,
	ErrorTypeUnrecoverable: http.StatusInternalServerError,
}

// AppError is the structured error type threaded through every layer of the
// orchestrator. A *AppError is returned by value from constructors so that
// WithDetails/WithDetailsf can mutate it in place before it escapes.
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Details    string
	Cause      error
}

func New(t ErrorType, message string) *AppError {
	code, ok := statusByType[t]
	if !ok {
		code = http.StatusInternalServerError
	}
	return &AppError{Type: t, Message: message, StatusCode: code}
}

func Wrap(cause error, t ErrorType, message string) *AppError {
	err := New(t, message)
	err.Cause = cause
	return err
}

func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Details)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// Predefined constructors for the most common call sites.

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

func NewDatabaseError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDatabase, "database operation failed: %s", operation)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewAuthError(message string) *AppError {
	return New(ErrorTypeAuth, message)
}

func NewTimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, fmt.Sprintf("operation timed out: %s", operation))
}

func NewQAFailureError(gate string, message string) *AppError {
	return New(ErrorTypeQAFailure, fmt.Sprintf("%s failed: %s", gate, message))
}

func NewSafetyError(message string) *AppError {
	return New(ErrorTypeSafety, message)
}

func NewBudgetError(message string) *AppError {
	return New(ErrorTypeBudget, message)
}

func NewBoundaryError(message string) *AppError {
	return New(ErrorTypeBoundary, message)
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Type == t
}

// GetType returns the AppError's type, or ErrorTypeInternal for any other
// error (including nil-safe callers that already checked err != nil).
func GetType(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP status code associated with err.
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorMessages holds the canned, safe-to-expose messages used by
// SafeErrorMessage for error types whose real message might leak internals.
var ErrorMessages = struct {
	ResourceNotFound        string
	AuthenticationFailed    string
	OperationTimeout        string
	RateLimitExceeded       string
	ConcurrentModification  string
	InternalError           string
	SafetyViolation         string
	BudgetExceeded          string
	BoundaryViolation       string
}{
	ResourceNotFound:       "The requested resource was not found",
	AuthenticationFailed:   "Authentication failed",
	OperationTimeout:       "The operation timed out",
	RateLimitExceeded:      "Rate limit exceeded, please retry later",
	ConcurrentModification: "The resource was modified concurrently, please retry",
	InternalError:          "An internal error occurred",
	SafetyViolation:        "The requested action was blocked by a safety policy",
	BudgetExceeded:         "Budget limit exceeded",
	BoundaryViolation:      "Access denied: outside of assigned domain",
}

// SafeErrorMessage returns a message appropriate for external exposure:
// validation messages are passed through verbatim (they are meant to guide
// the caller), everything else maps to a canned, detail-free message.
func SafeErrorMessage(err error) string {
	appErr, ok := err.(*AppError)
	if !ok {
		return "An unexpected error occurred"
	}

	switch appErr.Type {
	case ErrorTypeValidation:
		return appErr.Message
	case ErrorTypeNotFound:
		return ErrorMessages.ResourceNotFound
	case ErrorTypeAuth:
		return ErrorMessages.AuthenticationFailed
	case ErrorTypeTimeout:
		return ErrorMessages.OperationTimeout
	case ErrorTypeRateLimit:
		return ErrorMessages.RateLimitExceeded
	case ErrorTypeConflict:
		return ErrorMessages.ConcurrentModification
	case ErrorTypeSafety, ErrorTypeBoundary:
		return ErrorMessages.SafetyViolation
	case ErrorTypeBudget:
		return ErrorMessages.BudgetExceeded
	default:
		return ErrorMessages.InternalError
	}
}

// LogFields returns structured fields suitable for a logger's With(...) call.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{"error": err.Error()}

	appErr, ok := err.(*AppError)
	if !ok {
		return fields
	}

	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain joins a set of errors (ignoring nils) into a single error whose
// message concatenates each, in order, separated by " -> ". Returns nil if
// every argument is nil, and the bare error if only one is non-nil.
func Chain(errs ...error) error {
	var nonNil []error
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}

	msg := nonNil[0].Error()
	for _, e := range nonNil[1:] {
		msg += " -> " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
