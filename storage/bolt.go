package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltArea implements Area on top of a bbolt database file.
// Every process opening the same file and bucket sees the same area ID.
// bbolt holds an exclusive file lock, so processes sharing a file take turns
// through Open timeouts rather than concurrent handles.
type BoltArea struct {
	db     *bolt.DB
	bucket []byte
	id     string
	closed atomic.Bool
}

// BoltConfig holds bbolt area configuration.
type BoltConfig struct {
	// Path is the database file.
	Path string

	// Bucket is the bucket holding the area's keys.
	// Default: "kvmirror"
	Bucket string

	// OpenTimeout bounds the wait for the file lock.
	// Default: 1s
	OpenTimeout time.Duration
}

// DefaultBoltConfig returns configuration with sensible defaults.
func DefaultBoltConfig() BoltConfig {
	return BoltConfig{
		Bucket:      "kvmirror",
		OpenTimeout: time.Second,
	}
}

// OpenBolt opens (creating if needed) a bbolt-backed area.
func OpenBolt(path, bucket string) (*BoltArea, error) {
	cfg := DefaultBoltConfig()
	cfg.Path = path
	if bucket != "" {
		cfg.Bucket = bucket
	}
	return NewBoltArea(cfg)
}

// NewBoltArea opens a bbolt-backed area from configuration.
func NewBoltArea(cfg BoltConfig) (*BoltArea, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBoltConfig().Bucket
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultBoltConfig().OpenTimeout
	}

	path, err := filepath.Abs(filepath.Clean(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("resolve bolt path: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	bucket := []byte(cfg.Bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltArea{
		db:     db,
		bucket: bucket,
		id:     "bolt:" + path + "#" + cfg.Bucket,
	}, nil
}

// ID returns the area identity.
func (a *BoltArea) ID() string {
	return a.id
}

// Get retrieves a value by key. A cursor seek is used so that an empty
// stored value is reported as present.
func (a *BoltArea) Get(key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	if a.closed.Load() {
		return "", false, ErrClosed
	}

	var (
		value string
		found bool
	)
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(a.bucket)
		if b == nil {
			return nil
		}
		k, v := b.Cursor().Seek([]byte(key))
		if k != nil && bytes.Equal(k, []byte(key)) {
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("bolt get: %w", err)
	}
	return value, found, nil
}

// Set stores a value.
func (a *BoltArea) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if a.closed.Load() {
		return ErrClosed
	}

	err := a.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(a.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("bolt put: %w", err)
	}
	return nil
}

// Remove deletes a key.
func (a *BoltArea) Remove(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if a.closed.Load() {
		return ErrClosed
	}

	err := a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(a.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bolt delete: %w", err)
	}
	return nil
}

// Keys returns all keys matching a pattern, in byte order.
func (a *BoltArea) Keys(pattern string) ([]string, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}

	var keys []string
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(a.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			if MatchPattern(pattern, string(k)) {
				keys = append(keys, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the database file.
func (a *BoltArea) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.db.Close()
}
