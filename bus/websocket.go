package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig holds WebSocket link configuration.
type WebSocketConfig struct {
	Config // Embed base config

	// WriteTimeout for write operations.
	WriteTimeout time.Duration

	// MaxMessageSize limits incoming message size.
	MaxMessageSize int64

	// HandshakeTimeout bounds the dial handshake.
	HandshakeTimeout time.Duration
}

// DefaultWebSocketConfig returns configuration with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Config:           DefaultConfig(),
		WriteTimeout:     10 * time.Second,
		MaxMessageSize:   1024 * 1024, // 1MB
		HandshakeTimeout: 5 * time.Second,
	}
}

func (c WebSocketConfig) withDefaults() WebSocketConfig {
	d := DefaultWebSocketConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	return c
}

// WebSocketBus implements MessageBus over a single WebSocket connection to
// a WebSocketHub. Published messages go to every other peer of the hub;
// the bus does not receive its own messages.
type WebSocketBus struct {
	conn    *websocket.Conn
	config  WebSocketConfig
	subs    *subscriberSet
	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

// DialWebSocket connects to a hub at url (ws:// or wss://).
func DialWebSocket(ctx context.Context, url string, cfg WebSocketConfig) (*WebSocketBus, error) {
	cfg = cfg.withDefaults()
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return NewWebSocketBus(conn, cfg), nil
}

// NewWebSocketBus wraps an established connection and starts reading.
func NewWebSocketBus(conn *websocket.Conn, cfg WebSocketConfig) *WebSocketBus {
	cfg = cfg.withDefaults()
	conn.SetReadLimit(cfg.MaxMessageSize)

	b := &WebSocketBus{
		conn:   conn,
		config: cfg,
		subs:   newSubscriberSet(cfg.BufferSize),
		done:   make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// Publish sends a message to the hub.
func (b *WebSocketBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.closed.Load() {
		return ErrClosed
	}

	frame, err := json.Marshal(&Message{Subject: subject, Data: data})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.conn.SetWriteDeadline(time.Now().Add(b.config.WriteTimeout))
	if err := b.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Subscribe creates a subscription to a subject.
func (b *WebSocketBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return b.subs.add(subject), nil
}

// Done is closed once the connection has stopped reading.
func (b *WebSocketBus) Done() <-chan struct{} {
	return b.done
}

// Close sends a close frame, closes the connection and every subscription.
func (b *WebSocketBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.writeMu.Lock()
	b.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	b.writeMu.Unlock()

	err := b.conn.Close()
	<-b.done
	return err
}

// readLoop decodes frames and delivers them until the connection fails.
func (b *WebSocketBus) readLoop() {
	defer close(b.done)
	defer b.subs.closeAll()

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Subject == "" {
			// Not one of ours, skip
			continue
		}
		b.subs.deliver(&msg)
	}
}

// WebSocketHub accepts WebSocketBus peers and forwards every frame a peer
// sends to all other peers.
type WebSocketHub struct {
	upgrader websocket.Upgrader
	config   WebSocketConfig

	mu     sync.Mutex
	peers  map[*hubPeer]struct{}
	closed bool
}

type hubPeer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketHub creates a hub. Mount it as an http.Handler.
func NewWebSocketHub(cfg WebSocketConfig) *WebSocketHub {
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Override in production
		},
		config: cfg.withDefaults(),
		peers:  make(map[*hubPeer]struct{}),
	}
}

// ServeHTTP upgrades the request and relays the peer's frames.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(h.config.MaxMessageSize)

	peer := &hubPeer{conn: conn}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.peers[peer] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.peers, peer)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.broadcast(peer, msgType, data)
	}
}

func (h *WebSocketHub) broadcast(from *hubPeer, msgType int, data []byte) {
	h.mu.Lock()
	targets := make([]*hubPeer, 0, len(h.peers))
	for p := range h.peers {
		if p != from {
			targets = append(targets, p)
		}
	}
	h.mu.Unlock()

	for _, p := range targets {
		p.writeMu.Lock()
		p.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
		// A failed peer is dropped by its own read loop.
		p.conn.WriteMessage(msgType, data)
		p.writeMu.Unlock()
	}
}

// Peers returns the number of connected peers.
func (h *WebSocketHub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close disconnects every peer and refuses new ones.
func (h *WebSocketHub) Close() error {
	h.mu.Lock()
	h.closed = true
	peers := make([]*hubPeer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.writeMu.Lock()
		p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second),
		)
		p.writeMu.Unlock()
		p.conn.Close()
	}
	return nil
}
