// Package errors provides the coded application error used across the service.
//
// Every error surfaced by the approval core carries a Code that tells the caller
// how to react: validation and authorization failures are terminal, conflicts are
// retried after a re-read, configuration problems are logged and degraded.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an application error.
type Code string

const (
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeClassification Code = "CLASSIFICATION"
	ErrCodeUnauthorized   Code = "UNAUTHORIZED"
	ErrCodeConflict       Code = "CONFLICT"
	ErrCodeConfiguration  Code = "CONFIGURATION"
	ErrCodeBudgetExceeded Code = "BUDGET_EXCEEDED"
	ErrCodeNotFound       Code = "NOT_FOUND"
	ErrCodeInternal       Code = "INTERNAL"
)

// AppError is an error with a machine-readable code.
type AppError struct {
	Code    Code
	Message string
	Field   string
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

// New creates an AppError with the given code.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput reports a malformed input field.
func InvalidInput(field, message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Field: field, Message: message}
}

// Unauthorized reports an actor that may not perform the operation.
func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

// Conflict reports an optimistic-concurrency mismatch.
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// Configuration reports inconsistent reference data (rules, delegations, budgets).
func Configuration(message string) *AppError {
	return New(ErrCodeConfiguration, message)
}

// BudgetExceeded reports that neither vessel nor fleet budget can absorb an amount.
func BudgetExceeded(message string) *AppError {
	return New(ErrCodeBudgetExceeded, message)
}

// CodeOf returns the code of the first AppError in err's chain, or ErrCodeInternal.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsValidation covers malformed input and classification failures.
func IsValidation(err error) bool {
	return Is(err, ErrCodeInvalidInput) || Is(err, ErrCodeClassification)
}

func IsAuthorization(err error) bool  { return Is(err, ErrCodeUnauthorized) }
func IsConflict(err error) bool       { return Is(err, ErrCodeConflict) }
func IsConfiguration(err error) bool  { return Is(err, ErrCodeConfiguration) }
func IsBudgetExceeded(err error) bool { return Is(err, ErrCodeBudgetExceeded) }
func IsNotFound(err error) bool       { return Is(err, ErrCodeNotFound) }
