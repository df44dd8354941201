package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already a GenError, it wraps it with the new message and keeps the
// original code, category, and IDs.
// Context deadline and cancellation errors map to TIMEOUT and CANCELLED so the
// retry ladder classifies them as limit-class failures.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	// If it's already a GenError, preserve its properties
	var genErr *Error
	if errors.As(err, &genErr) {
		wrapped := &Error{
			code:      genErr.code,
			category:  genErr.category,
			message:   message,
			cause:     err,
			metadata:  genErr.Metadata(),
			retryable: genErr.retryable,
			sessionID: genErr.sessionID,
			taskID:    genErr.taskID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	// Check for context errors
	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCancelled, message, append(opts, WithCause(err))...)
	}

	// Default to internal error for unknown errors
	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsGenError extracts a GenError from an error chain.
// Returns nil and false if the chain contains no GenError.
func AsGenError(err error) (*Error, bool) {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}

// CodeOf returns the error code of err, or ErrCodeInternal if err carries none.
func CodeOf(err error) ErrorCode {
	if genErr, ok := AsGenError(err); ok {
		return genErr.Code()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrCodeCancelled
	}
	return ErrCodeInternal
}

// CategoryOf returns the category of err, or CategoryInternal if unknown.
func CategoryOf(err error) ErrorCategory {
	if genErr, ok := AsGenError(err); ok {
		return genErr.Category()
	}
	return CodeOf(err).DefaultCategory()
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
