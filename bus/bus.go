package bus

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string `json:"subject"`

	// Data is the message payload.
	Data []byte `json:"data"`
}

// MessageBus provides subject-based pub/sub messaging.
type MessageBus interface {
	// Publish sends a message to all subscribers of a subject.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription to a subject.
	// All subscribers receive all messages.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus and closes every subscription channel.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription. Calling it twice is a no-op.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}

// chanSub is a channel-backed subscription owned by a subscriberSet.
type chanSub struct {
	subject string
	ch      chan *Message
	closed  atomic.Bool
	set     *subscriberSet
}

// Messages returns the message channel.
func (s *chanSub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe cancels the subscription.
func (s *chanSub) Unsubscribe() error {
	s.set.remove(s)
	return nil
}

// subscriberSet tracks channel subscriptions by subject. Sends happen under
// the read lock and closes under the write lock, so a channel is never
// written after it is closed.
type subscriberSet struct {
	mu         sync.RWMutex
	subs       map[string][]*chanSub
	bufferSize int
}

func newSubscriberSet(bufferSize int) *subscriberSet {
	return &subscriberSet{
		subs:       make(map[string][]*chanSub),
		bufferSize: bufferSize,
	}
}

func (s *subscriberSet) add(subject string) *chanSub {
	sub := &chanSub{
		subject: subject,
		ch:      make(chan *Message, s.bufferSize),
		set:     s,
	}
	s.mu.Lock()
	s.subs[subject] = append(s.subs[subject], sub)
	s.mu.Unlock()
	return sub
}

// deliver sends msg to every subscriber of its subject without blocking.
func (s *subscriberSet) deliver(msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs[msg.Subject] {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Buffer full, drop message
		}
	}
}

func (s *subscriberSet) remove(target *chanSub) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target.closed.Swap(true) {
		return
	}
	subs := s.subs[target.subject]
	for i, sub := range subs {
		if sub == target {
			s.subs[target.subject] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	close(target.ch)
}

func (s *subscriberSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, subs := range s.subs {
		for _, sub := range subs {
			if !sub.closed.Swap(true) {
				close(sub.ch)
			}
		}
	}
	s.subs = make(map[string][]*chanSub)
}
