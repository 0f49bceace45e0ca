package change

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vinayprograms/kvmirror/bus"
	"github.com/vinayprograms/kvmirror/logging"
)

// DefaultSubject is the transport subject notifications travel on.
const DefaultSubject = "kvmirror.changes"

// RelayConfig configures a Relay.
type RelayConfig struct {
	// Subject on the transport.
	// Default: DefaultSubject
	Subject string

	// Logger receives encode/publish failures.
	// Default: discard
	Logger *logging.Logger
}

// Relay bridges a Bus to a bus.MessageBus.
type Relay struct {
	changes *Bus
	mb      bus.MessageBus
	subject string
	log     *logging.Logger

	unsubscribe func()
	sub         bus.Subscription
	done        chan struct{}
	closeOnce   sync.Once
}

// NewRelay starts relaying between changes and mb. Close stops it; the
// transport itself stays open.
func NewRelay(changes *Bus, mb bus.MessageBus, cfg RelayConfig) (*Relay, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	sub, err := mb.Subscribe(cfg.Subject)
	if err != nil {
		return nil, fmt.Errorf("relay subscribe: %w", err)
	}

	r := &Relay{
		changes: changes,
		mb:      mb,
		subject: cfg.Subject,
		log:     cfg.Logger.WithComponent("relay").WithContextID(changes.ID()),
		sub:     sub,
		done:    make(chan struct{}),
	}
	r.unsubscribe = changes.Subscribe(r.outbound)
	go r.inbound()
	return r, nil
}

// outbound forwards notifications made in this context.
func (r *Relay) outbound(n Notification) {
	if n.Origin != r.changes.ID() {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		r.log.Warn("encode_failed", map[string]interface{}{"key": n.Key, "error": err.Error()})
		return
	}
	if err := r.mb.Publish(r.subject, data); err != nil {
		r.log.Warn("publish_failed", map[string]interface{}{"key": n.Key, "error": err.Error()})
	}
}

// inbound republishes notifications made in other contexts.
func (r *Relay) inbound() {
	defer close(r.done)

	for msg := range r.sub.Messages() {
		var n Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			r.log.Warn("decode_failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		if n.Origin == "" || n.Origin == r.changes.ID() {
			continue
		}
		r.changes.Publish(n)
	}
}

// Close stops relaying in both directions and waits for the inbound loop.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.unsubscribe()
		err = r.sub.Unsubscribe()
		<-r.done
	})
	return err
}
