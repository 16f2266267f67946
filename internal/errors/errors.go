// Package errors maps storage failures onto a small set of coded errors the session
// layer and metrics can branch on.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes an AppError.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeInternal   ErrorCode = "internal"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeCanceled   ErrorCode = "canceled"
)

// Code-only sentinels for use with errors.Is.
var (
	ErrNotFound = &AppError{Code: ErrCodeNotFound}
	ErrConflict = &AppError{Code: ErrCodeConflict}
	ErrTimeout  = &AppError{Code: ErrCodeTimeout}
)

// AppError is a coded error wrapping an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field is the column that caused the error, when known.
	Field string
}

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches any AppError carrying the same code, so wrapped errors compare equal to the
// code-only sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// NotFound returns a not_found error with message.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// CodeOf returns the code of the outermost AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
