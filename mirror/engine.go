package mirror

import (
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vinayprograms/kvmirror/change"
	"github.com/vinayprograms/kvmirror/codec"
	kverrors "github.com/vinayprograms/kvmirror/errors"
	"github.com/vinayprograms/kvmirror/logging"
	"github.com/vinayprograms/kvmirror/storage"
)

// State is the lifecycle state of the current binding.
type State int

const (
	// Resolving means the engine is reading the bound key from the area.
	Resolving State = iota
	// Settled means the mirror holds the resolved value.
	Settled
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Settled:
		return "settled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Cause says what made the mirror change.
type Cause int

const (
	// CauseWrite is a local Write or Update.
	CauseWrite Cause = iota
	// CauseRemove is a local Remove.
	CauseRemove
	// CauseNotification is a change observed on the change bus.
	CauseNotification
	// CauseKeySwitch is a SwitchKey re-resolution.
	CauseKeySwitch
)

func (c Cause) String() string {
	switch c {
	case CauseWrite:
		return "write"
	case CauseRemove:
		return "remove"
	case CauseNotification:
		return "notification"
	case CauseKeySwitch:
		return "key_switch"
	default:
		return fmt.Sprintf("Cause(%d)", int(c))
	}
}

// Change is delivered to OnChange callbacks.
type Change[T any] struct {
	Key     string
	Value   T
	Present bool
	Cause   Cause
}

type binding[T any] struct {
	key      string
	fallback T
}

type listener[T any] struct {
	fn     func(Change[T])
	active atomic.Bool
}

// outcome collects the side effects of one operation. They are carried out
// after the engine lock is released.
type outcome[T any] struct {
	errs   []error
	notify *change.Notification
	change *Change[T]
}

func (o *outcome[T]) fail(err error) {
	o.errs = append(o.errs, err)
}

// Engine keeps a mirror of one key consistent with a storage area.
// All methods are safe for concurrent use.
type Engine[T any] struct {
	id      string
	mu      sync.Mutex
	area    storage.Area
	areaID  string
	changes *change.Bus
	codec   codec.Codec[T]
	sink    ErrorSink
	log     *logging.Logger
	sync    bool

	binding binding[T]
	state   State
	value   T
	present bool
	raw     *string // last raw string known to match value
	version uint64  // bumped on every mirror change
	closed  bool
	unsub   func()

	lmu       sync.Mutex
	listeners []*listener[T]
}

// New binds key in area and resolves its value. Notifications are
// observed on changes, and local writes are echoed there. A nil area gives
// a detached engine; a nil changes bus disables echo and notifications.
//
// New never fails: resolution problems are reported to the error sink and
// the engine starts from fallback.
func New[T any](area storage.Area, changes *change.Bus, key string, fallback T, opts ...Option) *Engine[T] {
	s := settings{sync: true}
	for _, opt := range opts {
		opt(&s)
	}

	e := &Engine[T]{
		id:      uuid.NewString(),
		area:    area,
		changes: changes,
		sync:    s.sync,
		binding: binding[T]{key: key, fallback: fallback},
		state:   Resolving,
	}
	if area != nil {
		e.areaID = area.ID()
	}

	e.log = s.logger
	if e.log == nil {
		e.log = logging.New()
	}
	e.log = e.log.WithComponent("mirror")
	if changes != nil {
		e.log = e.log.WithContextID(changes.ID())
	}

	e.sink = s.sink
	if e.sink == nil {
		e.sink = LogSink(e.log)
	}

	var out outcome[T]
	e.codec = e.buildCodec(s, &out)

	if changes != nil && area != nil {
		e.unsub = changes.Subscribe(e.onNotification)
	}

	e.mu.Lock()
	e.resolveLocked(&out)
	e.mu.Unlock()

	e.finish(out)
	return e
}

func (e *Engine[T]) buildCodec(s settings, out *outcome[T]) codec.Codec[T] {
	var base codec.Codec[T] = codec.JSON[T]{}
	if s.codec != nil {
		c, ok := s.codec.(codec.Codec[T])
		if ok {
			base = c
		} else {
			out.fail(kverrors.Newf(kverrors.ErrCodeInternal, "codec %T does not encode %T", s.codec, *new(T)))
		}
	}

	var ser codec.Serializer[T]
	if s.serializer != nil {
		if fn, ok := s.serializer.(codec.Serializer[T]); ok {
			ser = fn
		} else {
			out.fail(kverrors.Newf(kverrors.ErrCodeInternal, "serializer %T does not encode %T", s.serializer, *new(T)))
		}
	}

	var parse codec.Parser[T]
	if s.parser != nil {
		if fn, ok := s.parser.(codec.Parser[T]); ok {
			parse = fn
		} else {
			out.fail(kverrors.Newf(kverrors.ErrCodeInternal, "parser %T does not decode %T", s.parser, *new(T)))
		}
	}

	return codec.Override(base, ser, parse)
}

// resolveLocked runs bind resolution for the current binding followed by
// the synchronizing write. Caller holds e.mu.
func (e *Engine[T]) resolveLocked(out *outcome[T]) {
	e.state = Resolving
	key := e.binding.key
	e.raw = nil
	e.version++

	if e.area == nil {
		e.value, e.present = e.binding.fallback, true
		e.state = Settled
		e.log.Resolved(key, "", "fallback")
		return
	}

	value := e.binding.fallback
	source := "fallback"
	stored, ok, err := e.area.Get(key)
	if err != nil {
		// The stored state is unknown; it must not be overwritten.
		out.fail(e.backendErr("get", key, err))
		e.value, e.present = value, true
		e.state = Settled
		e.log.Resolved(key, e.areaID, "unreadable")
		return
	}
	if ok {
		v, err := e.deserialize(stored)
		if err != nil {
			out.fail(kverrors.Codec("deserialize", key, err, kverrors.WithArea(e.areaID)))
		} else {
			value = v
			source = "stored"
		}
	}
	e.value, e.present = value, true
	e.state = Settled
	e.log.Resolved(key, e.areaID, source)

	if source == "stored" {
		e.raw = &stored
		return
	}

	// The key is absent or its value unparseable: persist the resolved
	// value so other readers see what this engine sees.
	raw, err := e.serialize(value)
	if err != nil {
		out.fail(kverrors.Codec("serialize", key, err, kverrors.WithArea(e.areaID)))
		return
	}
	if err := e.area.Set(key, raw); err != nil {
		out.fail(e.backendErr("set", key, err))
		return
	}
	var old *string
	if ok {
		old = &stored
	}
	e.raw = &raw
	out.notify = e.notification(key, old, &raw)
}

// maxUpdateAttempts bounds how often Update recomputes after losing to a
// concurrent change.
const maxUpdateAttempts = 100

// Write persists v under the current key and updates the mirror.
func (e *Engine[T]) Write(v T) {
	var out outcome[T]
	e.mu.Lock()
	e.applyLocked("write", v, nil, &out)
	e.mu.Unlock()
	e.finish(out)
}

// Update computes the new value from the current mirror and writes it.
// fn receives the zero value and false when the key is absent. fn runs
// without the engine locked, so it may read the engine. When the mirror
// changes while fn runs, fn is called again with the new value; fn should
// therefore have no side effects.
func (e *Engine[T]) Update(fn func(cur T, present bool) T) {
	for attempt := 1; ; attempt++ {
		e.mu.Lock()
		cur, present, version, closed := e.value, e.present, e.version, e.closed
		e.mu.Unlock()

		var (
			next T
			err  error
		)
		if !closed {
			next, err = compute(fn, cur, present)
		}

		var out outcome[T]
		e.mu.Lock()
		stale := !e.closed && err == nil && e.version != version
		if stale && attempt < maxUpdateAttempts {
			e.mu.Unlock()
			continue
		}
		if stale {
			out.fail(kverrors.Conflict("update", e.binding.key, kverrors.WithArea(e.areaID)))
		} else {
			e.applyLocked("update", next, err, &out)
		}
		e.mu.Unlock()
		e.finish(out)
		return
	}
}

// applyLocked persists next. err is a failure of computing next. Caller
// holds e.mu.
func (e *Engine[T]) applyLocked(op string, next T, err error, out *outcome[T]) {
	key := e.binding.key
	if e.closed {
		out.fail(kverrors.Closed(op, kverrors.WithKey(key), kverrors.WithArea(e.areaID)))
		return
	}
	if err != nil {
		out.fail(kverrors.Wrap(err, op+" "+key, kverrors.WithKey(key), kverrors.WithArea(e.areaID)))
		return
	}

	if e.area == nil {
		e.value, e.present = next, true
		e.version++
		out.change = &Change[T]{Key: key, Value: next, Present: true, Cause: CauseWrite}
		return
	}

	raw, err := e.serialize(next)
	if err != nil {
		out.fail(kverrors.Codec("serialize", key, err, kverrors.WithArea(e.areaID)))
		return
	}
	if err := e.area.Set(key, raw); err != nil {
		out.fail(e.backendErr("set", key, err))
		return
	}

	old := e.raw
	e.value, e.present, e.raw = next, true, &raw
	e.version++
	out.notify = e.notification(key, old, &raw)
	out.change = &Change[T]{Key: key, Value: next, Present: true, Cause: CauseWrite}
}

// Remove deletes the current key from the area and marks the mirror absent.
func (e *Engine[T]) Remove() {
	var out outcome[T]
	e.mu.Lock()
	e.removeLocked(&out)
	e.mu.Unlock()
	e.finish(out)
}

func (e *Engine[T]) removeLocked(out *outcome[T]) {
	key := e.binding.key
	if e.closed {
		out.fail(kverrors.Closed("remove", kverrors.WithKey(key), kverrors.WithArea(e.areaID)))
		return
	}
	if e.area != nil {
		if err := e.area.Remove(key); err != nil {
			out.fail(e.backendErr("remove", key, err))
			return
		}
		out.notify = e.notification(key, e.raw, nil)
	}

	var zero T
	e.value, e.present, e.raw = zero, false, nil
	e.version++
	out.change = &Change[T]{Key: key, Cause: CauseRemove}
}

// SwitchKey rebinds the engine to key and resolves it. Without a fallback
// argument the previous fallback is kept. The previous key's stored value
// is left untouched.
func (e *Engine[T]) SwitchKey(key string, fallback ...T) {
	var out outcome[T]
	e.mu.Lock()
	e.switchLocked(key, fallback, &out)
	e.mu.Unlock()
	e.finish(out)
}

func (e *Engine[T]) switchLocked(key string, fallback []T, out *outcome[T]) {
	if e.closed {
		out.fail(kverrors.Closed("switch_key", kverrors.WithKey(key), kverrors.WithArea(e.areaID)))
		return
	}
	if key == "" {
		out.fail(kverrors.InvalidKey(key, kverrors.WithArea(e.areaID)))
		return
	}

	prev := e.binding.key
	b := binding[T]{key: key, fallback: e.binding.fallback}
	if len(fallback) > 0 {
		b.fallback = fallback[0]
	}
	e.binding = b
	e.log.KeySwitched(prev, key)

	e.resolveLocked(out)
	out.change = &Change[T]{Key: key, Value: e.value, Present: e.present, Cause: CauseKeySwitch}
}

// onNotification applies a change bus notification to the mirror.
func (e *Engine[T]) onNotification(n change.Notification) {
	var out outcome[T]
	e.mu.Lock()
	e.notifyLocked(n, &out)
	e.mu.Unlock()
	e.finish(out)
}

func (e *Engine[T]) notifyLocked(n change.Notification, out *outcome[T]) {
	if e.closed || e.state != Settled {
		return
	}
	// Own echoes were applied before they were published. Skipping them
	// keeps a late echo from undoing a newer write.
	if n.Writer == e.id {
		return
	}
	key := e.binding.key
	if n.Key != key || n.Area != e.areaID {
		return
	}
	if !e.sync && n.Origin != e.changes.ID() {
		return
	}
	if n.NewRaw == nil {
		if !e.present {
			return
		}
		var zero T
		e.value, e.present, e.raw = zero, false, nil
		e.version++
		e.log.NotificationApplied(key, n.Origin, true)
		out.change = &Change[T]{Key: key, Cause: CauseNotification}
		return
	}

	if e.raw != nil && *e.raw == *n.NewRaw {
		return
	}

	v, err := e.deserialize(*n.NewRaw)
	if err != nil {
		out.fail(kverrors.StaleNotification(key, err,
			kverrors.WithArea(e.areaID),
			kverrors.WithMetadata("origin", n.Origin)))
		return
	}
	raw := *n.NewRaw
	e.value, e.present, e.raw = v, true, &raw
	e.version++
	e.log.NotificationApplied(key, n.Origin, false)
	out.change = &Change[T]{Key: key, Value: v, Present: true, Cause: CauseNotification}
}

// Value returns the mirror. present is false after a removal.
func (e *Engine[T]) Value() (value T, present bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.present
}

// Key returns the currently bound key.
func (e *Engine[T]) Key() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.binding.key
}

// State returns the state of the current binding.
func (e *Engine[T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// AreaID returns the ID of the bound area, or "" when detached.
func (e *Engine[T]) AreaID() string {
	return e.areaID
}

// OnChange registers fn to run after every mirror change. The returned
// function unregisters it and may be called more than once.
func (e *Engine[T]) OnChange(fn func(Change[T])) (unsubscribe func()) {
	l := &listener[T]{fn: fn}
	l.active.Store(true)

	e.lmu.Lock()
	e.listeners = append(e.listeners, l)
	e.lmu.Unlock()

	return func() {
		if !l.active.Swap(false) {
			return
		}
		e.lmu.Lock()
		defer e.lmu.Unlock()
		for i, cur := range e.listeners {
			if cur == l {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				break
			}
		}
	}
}

// Close stops observing the change bus. Later Write, Update, Remove and
// SwitchKey calls are reported as CLOSED. Close is idempotent.
func (e *Engine[T]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsub := e.unsub
	e.unsub = nil
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// finish reports errors, publishes the local echo and runs callbacks.
func (e *Engine[T]) finish(out outcome[T]) {
	for _, err := range out.errs {
		e.sink(err)
	}
	if out.notify != nil && e.changes != nil {
		e.changes.Publish(*out.notify)
	}
	if out.change != nil {
		e.emit(*out.change)
	}
}

func (e *Engine[T]) emit(c Change[T]) {
	e.lmu.Lock()
	ls := make([]*listener[T], len(e.listeners))
	copy(ls, e.listeners)
	e.lmu.Unlock()

	for _, l := range ls {
		if l.active.Load() {
			l.fn(c)
		}
	}
}

func (e *Engine[T]) notification(key string, old, raw *string) *change.Notification {
	if e.changes == nil {
		return nil
	}
	return &change.Notification{
		Key:    key,
		Area:   e.areaID,
		OldRaw: old,
		NewRaw: raw,
		Origin: e.changes.ID(),
		Writer: e.id,
	}
}

func (e *Engine[T]) backendErr(op, key string, err error) error {
	switch {
	case stderrors.Is(err, storage.ErrQuotaExceeded):
		return kverrors.QuotaExceeded(key, err, kverrors.WithArea(e.areaID), kverrors.WithMetadata(kverrors.MetaOp, op))
	case stderrors.Is(err, storage.ErrInvalidKey):
		return kverrors.InvalidKey(key, kverrors.WithArea(e.areaID), kverrors.WithCause(err), kverrors.WithMetadata(kverrors.MetaOp, op))
	case stderrors.Is(err, storage.ErrClosed):
		return kverrors.Backend(op, key, err, kverrors.WithArea(e.areaID), kverrors.WithRetryable(false))
	default:
		return kverrors.Backend(op, key, err, kverrors.WithArea(e.areaID))
	}
}

// serialize, deserialize and compute turn panics into errors.

func (e *Engine[T]) serialize(v T) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kverrors.RecoverPanic(r)
		}
	}()
	return e.codec.Serialize(v)
}

func (e *Engine[T]) deserialize(raw string) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kverrors.RecoverPanic(r)
		}
	}()
	return e.codec.Deserialize(raw)
}

func compute[T any](fn func(T, bool) T, cur T, present bool) (next T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kverrors.RecoverPanic(r)
		}
	}()
	return fn(cur, present), nil
}
