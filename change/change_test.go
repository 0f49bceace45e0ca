package change

import (
	"encoding/json"
	"sync"
	"testing"
)

// --- Unit Tests ---

func TestNotification_Deleted(t *testing.T) {
	if !(Notification{Key: "k"}).Deleted() {
		t.Error("nil NewRaw should be a deletion")
	}
	if (Notification{Key: "k", NewRaw: Raw("")}).Deleted() {
		t.Error("empty NewRaw is a value, not a deletion")
	}
}

func TestNotification_JSON(t *testing.T) {
	n := Notification{
		Key:    "username",
		Area:   "memory:prefs",
		OldRaw: Raw(`"John Doe"`),
		NewRaw: Raw(`"Burt"`),
		Origin: "ctx-1",
		Writer: "engine-1",
	}

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"key":"username","area":"memory:prefs","old":"\"John Doe\"","new":"\"Burt\"","origin":"ctx-1"}`
	if string(data) != want {
		t.Errorf("json = %s\nwant   %s", data, want)
	}

	del, _ := json.Marshal(Notification{Key: "k", Area: "a", Origin: "o"})
	if string(del) != `{"key":"k","area":"a","new":null,"origin":"o"}` {
		t.Errorf("deletion json = %s", del)
	}
}

func TestBus_PublishOrderAndOrigin(t *testing.T) {
	b := NewBusWithID("ctx-1")
	if b.ID() != "ctx-1" {
		t.Fatalf("ID() = %q", b.ID())
	}

	var order []string
	b.Subscribe(func(n Notification) { order = append(order, "a:"+n.Origin) })
	b.Subscribe(func(n Notification) { order = append(order, "b:"+n.Origin) })

	b.Publish(Notification{Key: "k"})
	b.Publish(Notification{Key: "k", Origin: "ctx-2"})

	want := []string{"a:ctx-1", "b:ctx-1", "a:ctx-2", "b:ctx-2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBus_NewBusIDsAreUnique(t *testing.T) {
	a, b := NewBus(), NewBus()
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("IDs %q and %q", a.ID(), b.ID())
	}
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	b := NewBus()
	calls := 0
	unsub := b.Subscribe(func(Notification) { calls++ })

	b.Publish(Notification{})
	unsub()
	unsub()
	b.Publish(Notification{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}

func TestBus_UnsubscribeDuringDispatch(t *testing.T) {
	b := NewBus()

	var second func()
	firstCalls, secondCalls := 0, 0
	b.Subscribe(func(Notification) {
		firstCalls++
		second()
	})
	second = b.Subscribe(func(Notification) { secondCalls++ })

	b.Publish(Notification{})

	if firstCalls != 1 {
		t.Errorf("first calls = %d", firstCalls)
	}
	if secondCalls != 0 {
		t.Errorf("second handler ran after being unsubscribed mid-dispatch")
	}
}

func TestBus_SubscribeDuringDispatch(t *testing.T) {
	b := NewBus()
	late := 0
	b.Subscribe(func(Notification) {
		b.Subscribe(func(Notification) { late++ })
	})

	b.Publish(Notification{})
	if late != 0 {
		t.Errorf("handler added mid-dispatch ran for that dispatch")
	}
	b.Publish(Notification{})
	if late != 1 {
		t.Errorf("late = %d, want 1", late)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	count := 0
	b.Subscribe(func(Notification) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(Notification{Key: "k"})
			}
		}()
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("count = %d, want 1000", count)
	}
}
