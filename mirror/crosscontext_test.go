package mirror

import (
	"testing"
	"time"

	"github.com/vinayprograms/kvmirror/bus"
	"github.com/vinayprograms/kvmirror/change"
	"github.com/vinayprograms/kvmirror/logging"
	"github.com/vinayprograms/kvmirror/storage"
)

// peer is one process-like participant: its own change bus relayed over
// a shared transport, bound to a shared area.
type peer struct {
	changes *change.Bus
	relay   *change.Relay
}

func newPeer(t *testing.T, mb bus.MessageBus) *peer {
	t.Helper()
	changes := change.NewBus()
	relay, err := change.NewRelay(changes, mb, change.RelayConfig{})
	if err != nil {
		t.Fatalf("NewRelay error: %v", err)
	}
	t.Cleanup(func() { relay.Close() })
	return &peer{changes: changes, relay: relay}
}

func eventually[T comparable](t *testing.T, e *Engine[T], want T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := e.Value(); ok && got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, ok := e.Value()
	t.Fatalf("Value() = %v, %v; want %v", got, ok, want)
}

func eventuallyAbsent[T any](t *testing.T, e *Engine[T]) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := e.Value(); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Value() still present")
}

// --- Integration Tests ---

func TestCrossContext_WriteAndRemove(t *testing.T) {
	mb := bus.NewMemoryBus(bus.DefaultConfig())
	defer mb.Close()
	area := storage.NewMemoryArea(storage.WithName("shared"))
	rec := &recorder{}

	a, b := newPeer(t, mb), newPeer(t, mb)
	ea := newStringEngine(t, area, a.changes, rec, "username", "John Doe")
	eb := newStringEngine(t, area, b.changes, rec, "username", "someone else")

	// b resolved the value a persisted.
	wantValue(t, eb, "John Doe")

	ea.Write("Burt")
	eventually(t, eb, "Burt")

	eb.Write("Daffodil")
	eventually(t, ea, "Daffodil")

	ea.Remove()
	eventuallyAbsent(t, eb)

	if rec.count() != 0 {
		t.Errorf("unexpected failures: %v", rec.all())
	}
}

func TestCrossContext_SyncDisabled(t *testing.T) {
	mb := bus.NewMemoryBus(bus.DefaultConfig())
	defer mb.Close()
	area := storage.NewMemoryArea(storage.WithName("shared"))
	rec := &recorder{}

	a, b := newPeer(t, mb), newPeer(t, mb)
	ea := newStringEngine(t, area, a.changes, rec, "k", "v")
	eb := New(area, b.changes, "k", "v",
		WithSyncAcrossContexts(false), WithErrorSink(rec.sink), WithLogger(logging.Discard()))
	defer eb.Close()
	// A second engine in b that does sync, to know when the relay delivered.
	probe := newStringEngine(t, area, b.changes, rec, "k", "v")

	ea.Write("remote")
	eventually(t, probe, "remote")

	wantValue(t, eb, "v")
}

func TestCrossContext_DifferentAreas(t *testing.T) {
	mb := bus.NewMemoryBus(bus.DefaultConfig())
	defer mb.Close()
	rec := &recorder{}

	local := storage.NewMemoryArea(storage.WithName("local"))
	session := storage.NewMemoryArea(storage.WithName("session"))
	a, b := newPeer(t, mb), newPeer(t, mb)

	ea := newStringEngine(t, local, a.changes, rec, "k", "v")
	eb := newStringEngine(t, session, b.changes, rec, "k", "v")
	probe := newStringEngine(t, local, b.changes, rec, "k", "v")

	ea.Write("only-local")
	eventually(t, probe, "only-local")

	wantValue(t, eb, "v")
}
