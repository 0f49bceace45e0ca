package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already a MirrorError, the wrapper keeps its code and metadata.
// Otherwise, it creates a new Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var mirrorErr *Error
	if errors.As(err, &mirrorErr) {
		wrapped := &Error{
			code:      mirrorErr.code,
			category:  mirrorErr.category,
			message:   message,
			cause:     err,
			metadata:  mirrorErr.Metadata(),
			retryable: mirrorErr.retryable,
			timestamp: mirrorErr.timestamp,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// AsMirrorError attempts to extract a MirrorError from an error chain.
// Returns nil if no MirrorError is found.
func AsMirrorError(err error) MirrorError {
	var mirrorErr *Error
	if errors.As(err, &mirrorErr) {
		return mirrorErr
	}
	return nil
}

// Is checks if the outermost MirrorError in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	var mirrorErr *Error
	if errors.As(err, &mirrorErr) {
		return mirrorErr.code == code
	}
	return false
}

// IsCategory checks if the outermost MirrorError in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var mirrorErr *Error
	if errors.As(err, &mirrorErr) {
		return mirrorErr.category == category
	}
	return false
}

// IsBackend reports whether err came from a storage area, including quota
// rejections.
func IsBackend(err error) bool {
	return Is(err, ErrCodeBackend) || Is(err, ErrCodeQuotaExceeded)
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	var mirrorErr *Error
	if errors.As(err, &mirrorErr) {
		return mirrorErr.Retryable()
	}
	return false
}

// Code extracts the error code from an error, if available.
// Returns empty string if err is not a MirrorError.
func Code(err error) ErrorCode {
	var mirrorErr *Error
	if errors.As(err, &mirrorErr) {
		return mirrorErr.code
	}
	return ""
}

// GetMetadata extracts metadata from an error.
// Returns nil if err is not a MirrorError.
func GetMetadata(err error) map[string]string {
	var mirrorErr *Error
	if errors.As(err, &mirrorErr) {
		return mirrorErr.Metadata()
	}
	return nil
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
