package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

var natsKey = regexp.MustCompile(`^[-/_=\.a-zA-Z0-9]+$`)

// NATSArea implements Area using a NATS JetStream KV bucket.
// Every client of the same bucket shares the area ID "nats:<bucket>".
type NATSArea struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	config NATSAreaConfig
	closed atomic.Bool
}

// NATSAreaConfig holds NATS KV area configuration.
type NATSAreaConfig struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Bucket is the KV bucket name.
	Bucket string

	// History is the number of revisions to keep per key.
	// Default: 1
	History int

	// MaxValueSize is the maximum value size in bytes. Larger writes fail
	// and are reported by the mirror like a full browser store.
	// Default: 1MB
	MaxValueSize int32

	// OpTimeout bounds each KV operation.
	// Default: 5s
	OpTimeout time.Duration
}

// DefaultNATSAreaConfig returns configuration with sensible defaults.
func DefaultNATSAreaConfig() NATSAreaConfig {
	return NATSAreaConfig{
		Bucket:       "kvmirror",
		History:      1,
		MaxValueSize: 1024 * 1024, // 1MB
		OpTimeout:    5 * time.Second,
	}
}

// NewNATSArea creates (or binds to) a JetStream KV bucket.
func NewNATSArea(cfg NATSAreaConfig) (*NATSArea, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	defaults := DefaultNATSAreaConfig()
	if cfg.Bucket == "" {
		cfg.Bucket = defaults.Bucket
	}
	if cfg.History <= 0 {
		cfg.History = defaults.History
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = defaults.MaxValueSize
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaults.OpTimeout
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       cfg.Bucket,
		History:      uint8(cfg.History),
		MaxValueSize: cfg.MaxValueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}

	return &NATSArea{
		conn:   cfg.Conn,
		kv:     kv,
		config: cfg,
	}, nil
}

// ValidateNATSKey applies the KV subject rules on top of ValidateKey.
func ValidateNATSKey(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if strings.HasPrefix(key, ".") || strings.HasSuffix(key, ".") || !natsKey.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}

// ID returns the area identity.
func (a *NATSArea) ID() string {
	return "nats:" + a.config.Bucket
}

// Get retrieves a value by key.
func (a *NATSArea) Get(key string) (string, bool, error) {
	if err := ValidateNATSKey(key); err != nil {
		return "", false, err
	}
	if a.closed.Load() {
		return "", false, ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.config.OpTimeout)
	defer cancel()

	entry, err := a.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kv get: %w", err)
	}
	return string(entry.Value()), true, nil
}

// Set stores a value.
func (a *NATSArea) Set(key, value string) error {
	if err := ValidateNATSKey(key); err != nil {
		return err
	}
	if a.closed.Load() {
		return ErrClosed
	}
	if valueTooLarge(int64(len(value)), a.config.MaxValueSize) {
		return ErrQuotaExceeded
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.config.OpTimeout)
	defer cancel()

	if _, err := a.kv.PutString(ctx, key, value); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

func valueTooLarge(size int64, limit int32) bool {
	return size > int64(limit)
}

// Remove deletes a key.
func (a *NATSArea) Remove(key string) error {
	if err := ValidateNATSKey(key); err != nil {
		return err
	}
	if a.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.config.OpTimeout)
	defer cancel()

	err := a.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

// Keys returns all keys matching a pattern, sorted.
func (a *NATSArea) Keys(pattern string) ([]string, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*a.config.OpTimeout)
	defer cancel()

	lister, err := a.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	defer lister.Stop()

	var keys []string
	for key := range lister.Keys() {
		if MatchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases the area. The NATS connection is owned by the caller.
func (a *NATSArea) Close() error {
	a.closed.Store(true)
	return nil
}
