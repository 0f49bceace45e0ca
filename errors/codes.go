package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: backend unavailable, connection closed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: malformed stored payload, invalid key.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for mirror failures.
const (
	ErrCodeCodec             ErrorCode = "CODEC_ERROR"        // Serialize or deserialize failed
	ErrCodeBackend           ErrorCode = "BACKEND_ERROR"      // Storage area operation failed
	ErrCodeStaleNotification ErrorCode = "STALE_NOTIFICATION" // Notification payload unparseable
	ErrCodeQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"     // Storage area is full
	ErrCodeInvalidKey        ErrorCode = "INVALID_KEY"        // Key rejected before reaching the area
	ErrCodeClosed            ErrorCode = "CLOSED"             // Operation on a closed engine
	ErrCodeConflict          ErrorCode = "CONFLICT"           // Value kept changing during an update
	ErrCodeInternal          ErrorCode = "INTERNAL"           // Unexpected internal error
	ErrCodePanic             ErrorCode = "PANIC"              // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeBackend, ErrCodeConflict:
		return CategoryTransient
	case ErrCodeCodec, ErrCodeStaleNotification, ErrCodeInvalidKey, ErrCodeClosed:
		return CategoryPermanent
	case ErrCodeQuotaExceeded:
		return CategoryResource
	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeCodec:             "codec failure",
	ErrCodeBackend:           "storage backend failure",
	ErrCodeStaleNotification: "notification payload could not be parsed",
	ErrCodeQuotaExceeded:     "quota exceeded",
	ErrCodeInvalidKey:        "invalid key",
	ErrCodeClosed:            "mirror closed",
	ErrCodeConflict:          "value changed concurrently",
	ErrCodeInternal:          "internal error",
	ErrCodePanic:             "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
