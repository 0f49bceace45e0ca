package storage

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// MemoryArea implements Area using in-memory storage.
// A single MemoryArea may be shared by several contexts in one process,
// the way browser tabs share one origin's local storage.
type MemoryArea struct {
	mu     sync.RWMutex
	id     string
	data   map[string]string
	quota  int // bytes of keys+values, 0 = unlimited
	used   int
	closed atomic.Bool
}

// MemoryOption configures a MemoryArea.
type MemoryOption func(*MemoryArea)

// WithName sets a stable area name. The area ID becomes "memory:<name>".
// Without a name a random one is generated.
func WithName(name string) MemoryOption {
	return func(a *MemoryArea) {
		a.id = "memory:" + name
	}
}

// WithQuota limits the total bytes of keys and values the area holds.
// Writes that would exceed it fail with ErrQuotaExceeded.
func WithQuota(bytes int) MemoryOption {
	return func(a *MemoryArea) {
		a.quota = bytes
	}
}

// NewMemoryArea creates a new in-memory storage area.
func NewMemoryArea(opts ...MemoryOption) *MemoryArea {
	a := &MemoryArea{
		id:   "memory:" + uuid.NewString(),
		data: make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the area identity.
func (a *MemoryArea) ID() string {
	return a.id
}

// Get retrieves a value by key.
func (a *MemoryArea) Get(key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	if a.closed.Load() {
		return "", false, ErrClosed
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	v, ok := a.data[key]
	return v, ok, nil
}

// Set stores a value.
func (a *MemoryArea) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if a.closed.Load() {
		return ErrClosed
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	used := a.used
	if old, ok := a.data[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)
	if a.quota > 0 && used > a.quota {
		return ErrQuotaExceeded
	}

	a.data[key] = value
	a.used = used
	return nil
}

// Remove deletes a key.
func (a *MemoryArea) Remove(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if a.closed.Load() {
		return ErrClosed
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.data[key]; ok {
		a.used -= len(key) + len(old)
		delete(a.data, key)
	}
	return nil
}

// Keys returns all keys matching a pattern, sorted.
func (a *MemoryArea) Keys(pattern string) ([]string, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	var keys []string
	for key := range a.data {
		if MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every key.
func (a *MemoryArea) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data = make(map[string]string)
	a.used = 0
}

// Close shuts down the area. Subsequent operations return ErrClosed.
func (a *MemoryArea) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data = nil
	return nil
}
