package storage

import (
	"errors"
	"strings"
)

// Common errors.
var (
	ErrClosed        = errors.New("storage area closed")
	ErrInvalidKey    = errors.New("invalid key")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// MaxKeyLength is the longest key any area accepts.
const MaxKeyLength = 1024

// Area is a key-value storage area.
type Area interface {
	// ID identifies the physical store. Two handles on the same store in
	// different contexts report the same ID.
	ID() string

	// Get returns the stored string and whether the key is present.
	// A present key may hold the empty string.
	Get(key string) (string, bool, error)

	// Set stores value under key.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
}

// Lister is implemented by areas that can enumerate their keys.
type Lister interface {
	// Keys returns all keys matching a pattern.
	// Pattern supports * wildcard at the end (e.g., "prefs.*").
	Keys(pattern string) ([]string, error)
}

// ValidateKey checks if a key is valid for every area.
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxKeyLength {
		return ErrInvalidKey
	}
	return nil
}

// MatchPattern checks if a key matches a pattern.
// Supports * wildcard at the end (e.g., "prefs.*" matches "prefs.theme").
func MatchPattern(pattern, key string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
