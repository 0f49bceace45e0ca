package bus

import (
	"sync/atomic"
)

// MemoryBus implements MessageBus using in-memory channels.
// Every context holding the same MemoryBus sees every message, including
// the ones it published itself.
type MemoryBus struct {
	config Config
	subs   *subscriberSet
	closed atomic.Bool
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &MemoryBus{
		config: cfg,
		subs:   newSubscriberSet(cfg.BufferSize),
	}
}

// Publish sends a message to all subscribers.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	b.subs.deliver(&Message{
		Subject: subject,
		Data:    data,
	})
	return nil
}

// Subscribe creates a subscription to a subject.
func (b *MemoryBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}

	return b.subs.add(subject), nil
}

// Close shuts down the bus.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.subs.closeAll()
	return nil
}
