// Package change is the change bus that mirror engines listen on.
//
// A Bus represents one execution context. Engines in the same context share
// a Bus, publish a local echo on it after every successful write, and treat
// every Notification on it the same way whether it came from their own
// context or from another one. A Relay connects a Bus to a bus.MessageBus so
// notifications cross process or host boundaries:
//
//	changes := change.NewBus()
//	relay, _ := change.NewRelay(changes, natsBus, change.RelayConfig{})
//	defer relay.Close()
//
// Notifications published on the Bus by this context are forwarded to the
// transport; notifications arriving from the transport are published on the
// Bus unless they originated here.
package change
