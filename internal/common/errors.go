package common

import "errors"

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ErrRetryable marks failures that callers may safely retry, such as order
// materialisation hitting a temporarily unavailable backend.
var ErrRetryable = errors.New("retryable")

// Retryable wraps err so that errors.Is(err, ErrRetryable) reports true.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrRetryable, err)
}
