package change

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Notification describes a mutation of one key in one storage area.
type Notification struct {
	// Key is the mutated key.
	Key string `json:"key"`

	// Area is the ID of the storage area holding the key.
	Area string `json:"area"`

	// OldRaw is the previous stored string, if the publisher knew it.
	OldRaw *string `json:"old,omitempty"`

	// NewRaw is the new stored string. Nil means the key was removed.
	NewRaw *string `json:"new"`

	// Origin is the ID of the Bus of the context that made the change.
	Origin string `json:"origin"`

	// Writer identifies the engine that published a local echo. It is not
	// relayed to other contexts.
	Writer string `json:"-"`
}

// Deleted reports whether the notification describes a removal.
func (n Notification) Deleted() bool {
	return n.NewRaw == nil
}

// Raw returns a pointer to a copy of s, for building notifications.
func Raw(s string) *string {
	return &s
}

// Handler receives notifications.
type Handler func(Notification)

type subscription struct {
	handler Handler
	active  atomic.Bool
}

// Bus dispatches notifications synchronously to its subscribers.
type Bus struct {
	id   string
	mu   sync.RWMutex
	subs []*subscription
}

// NewBus creates a bus with a fresh context ID.
func NewBus() *Bus {
	return NewBusWithID(uuid.NewString())
}

// NewBusWithID creates a bus with a caller-chosen context ID.
func NewBusWithID(id string) *Bus {
	return &Bus{id: id}
}

// ID returns the context ID stamped on notifications published here.
func (b *Bus) ID() string {
	return b.id
}

// Subscribe registers h and returns a function that removes it. The
// returned function may be called any number of times; once it returns, h
// is not invoked again, even by a dispatch already in progress.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	s := &subscription{handler: h}
	s.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	return func() {
		if !s.active.Swap(false) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.subs {
			if cur == s {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers n to every subscriber in subscription order. An empty
// Origin is set to the bus ID.
func (b *Bus) Publish(n Notification) {
	if n.Origin == "" {
		n.Origin = b.id
	}

	b.mu.RLock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.active.Load() {
			s.handler(n)
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
