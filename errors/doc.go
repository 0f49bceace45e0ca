// Package errors provides the structured error taxonomy used by kvmirror.
// Every recoverable failure the sync engine observes is converted into an
// *Error and handed to the configured error sink; nothing in this module
// returns these failures to the consumer of a mirror.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: the backend may accept the same operation later (I/O failure, closed connection)
//   - Permanent: retrying the same input will fail again (unparseable payload, invalid key)
//   - Resource: the backend refused because it is full (quota exceeded)
//   - Internal: unexpected failures such as a recovered panic
//
// # Error Codes
//
//   - CODEC_ERROR: a value could not be serialized or a stored string parsed
//   - BACKEND_ERROR: a storage area Get/Set/Remove failed
//   - STALE_NOTIFICATION: a change notification carried an unparseable payload
//   - QUOTA_EXCEEDED: a storage area rejected a write for lack of space
//   - INVALID_KEY, CLOSED, INTERNAL, PANIC
//
// # Usage
//
//	err := errors.Codec("deserialize", "username", cause)
//	if errors.Is(err, errors.ErrCodeCodec) {
//	    // fall back
//	}
//
// Metadata carries the key, storage area and operation involved:
//
//	errors.GetMetadata(err)["key"]
package errors
