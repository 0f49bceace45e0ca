// Package bus provides the message transports that carry change
// notifications between execution contexts.
//
// # Overview
//
// The MessageBus interface is a minimal subject-based pub/sub. The mirror
// engine never talks to a MessageBus directly: a change.Relay encodes
// notifications onto a subject and decodes the ones other contexts publish.
// All implementations use channel-based subscriptions.
//
// # Available Implementations
//
//   - MemoryBus: shared by contexts living in one process (tests, tabs of one app)
//   - NATSBus: contexts on different processes or hosts, via a NATS server
//   - WebSocketBus: a peer link to a WebSocketHub, for contexts that can only
//     reach each other over HTTP
//
// # Pattern
//
//	sub, _ := b.Subscribe("kvmirror.changes")
//	for msg := range sub.Messages() {
//	    // decode and apply
//	}
//
//	b.Publish("kvmirror.changes", payload)
//
// Delivery is best effort: when a subscriber's buffer is full, messages are
// dropped rather than blocking the publisher. The mirror tolerates missed
// notifications because binding and key switches always re-read the area.
package bus
