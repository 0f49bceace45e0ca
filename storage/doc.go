// Package storage provides the storage areas a mirror persists into.
//
// An Area is a flat string-to-string key-value store shared by every
// execution context that opens the same physical store. Areas distinguish a
// missing key from a key holding the empty string, and each area reports an
// ID that is identical for every context attached to the same store so that
// change notifications can be matched to the area they describe.
//
// # Backends
//
//   - MemoryArea: in-process, optionally quota-limited (testing, single-process use)
//   - BoltArea: a bbolt database file, one bucket per area
//   - SQLiteArea: a SQLite table (item_key, item_value), via the pure-Go modernc driver
//   - NATSArea: a NATS JetStream key-value bucket shared across hosts
//
// # Usage
//
//	area := storage.NewMemoryArea(storage.WithName("local"))
//	_ = area.Set("username", `"Burt"`)
//	raw, ok, _ := area.Get("username")
//
//	bolt, _ := storage.OpenBolt("/var/lib/app/state.db", "prefs")
//	defer bolt.Close()
package storage
