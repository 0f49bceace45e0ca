package errors

import (
	"fmt"
	"time"
)

// MirrorError is the interface for all structured errors in kvmirror.
type MirrorError interface {
	error

	// Code returns the specific error code identifying the failure type.
	Code() ErrorCode

	// Category returns the error category for handling decisions.
	Category() ErrorCategory

	// Retryable returns true if the operation may succeed on retry.
	Retryable() bool

	// Metadata returns additional context as key-value pairs.
	Metadata() map[string]string

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Metadata keys set by the constructors in this package.
const (
	MetaKey  = "key"
	MetaArea = "area"
	MetaOp   = "op"
)

// Error is the concrete implementation of MirrorError.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool // nil means use default based on category
	timestamp time.Time
}

var _ MirrorError = (*Error)(nil)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMetadata adds a metadata key-value pair. Empty values are skipped.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if value == "" {
			return
		}
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithKey records the mirrored key involved in the failure.
func WithKey(key string) Option {
	return WithMetadata(MetaKey, key)
}

// WithArea records the storage area involved in the failure.
func WithArea(area string) Option {
	return WithMetadata(MetaArea, area)
}

// WithTimestamp sets a custom timestamp.
func WithTimestamp(t time.Time) Option {
	return func(e *Error) {
		e.timestamp = t
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// Codec creates a codec error for a serialize or deserialize operation.
func Codec(op, key string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithKey(key), WithMetadata(MetaOp, op), WithCause(cause)}, opts...)
	return New(ErrCodeCodec, op+" "+key, opts...)
}

// Backend creates a storage backend error for a get, set or remove.
func Backend(op, key string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithKey(key), WithMetadata(MetaOp, op), WithCause(cause)}, opts...)
	return New(ErrCodeBackend, op+" "+key, opts...)
}

// QuotaExceeded creates a quota error for a rejected write.
func QuotaExceeded(key string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithKey(key), WithMetadata(MetaOp, "set"), WithCause(cause)}, opts...)
	return New(ErrCodeQuotaExceeded, "set "+key, opts...)
}

// StaleNotification creates an error for a change notification whose
// payload could not be parsed.
func StaleNotification(key string, cause error, opts ...Option) *Error {
	opts = append([]Option{WithKey(key), WithMetadata(MetaOp, "notify"), WithCause(cause)}, opts...)
	return New(ErrCodeStaleNotification, "notification for "+key, opts...)
}

// Closed creates an error for an operation attempted after close.
func Closed(op string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata(MetaOp, op)}, opts...)
	return New(ErrCodeClosed, op+" on closed mirror", opts...)
}

// Conflict creates an error for an update that kept losing to concurrent
// changes of the same mirror.
func Conflict(op, key string, opts ...Option) *Error {
	opts = append([]Option{WithKey(key), WithMetadata(MetaOp, op)}, opts...)
	return New(ErrCodeConflict, op+" "+key+": value changed concurrently", opts...)
}

// InvalidKey creates an invalid key error.
func InvalidKey(key string, opts ...Option) *Error {
	opts = append([]Option{WithKey(key)}, opts...)
	return New(ErrCodeInvalidKey, fmt.Sprintf("invalid key %q", key), opts...)
}
