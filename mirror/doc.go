// Package mirror binds an in-memory value to a key in a storage area and
// keeps the two consistent with every other context that shares the area.
//
// # Overview
//
// An Engine owns one binding (key, fallback, codec) at a time and a mirror
// of the value persisted under that key. Three things change the mirror:
//
//   - local writes (Write, Update, Remove), which persist first and then
//     publish a local echo on the context's change.Bus
//   - notifications on the change.Bus, whether echoed by an engine of this
//     context or relayed from another context
//   - key switches (SwitchKey), which re-read the new key from the area
//
// Failures never reach the caller. Codec, backend and notification errors
// are passed to the ErrorSink and the mirror keeps its last good value.
//
// # Usage
//
//	area := storage.NewMemoryArea(storage.WithName("prefs"))
//	changes := change.NewBus()
//
//	name := mirror.New(area, changes, "username", "John Doe",
//	    mirror.WithErrorSink(mirror.LogSink(logger)))
//	defer name.Close()
//
//	name.OnChange(func(c mirror.Change[string]) {
//	    fmt.Println(c.Key, c.Value, c.Cause)
//	})
//	name.Write("Burt")
//	name.Update(func(cur string, _ bool) string { return cur + "!" })
//
// # Detached mode
//
// A nil area gives an engine that behaves as a plain in-memory cell: it
// starts at the fallback, never persists and never publishes. This is the
// behaviour a consumer gets when no storage backend is available.
package mirror
