package hub

import (
	"sync"
	"sync/atomic"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

// MessageBridge publishes encoded envelopes to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(frame []byte) error
	Available() bool
}

// Hub owns the connection registry and fans envelopes out to it.
type Hub struct {
	registry *Registry
	remote   chan []byte // frames from the bridge, delivered locally only

	bridge  MessageBridge
	mu      sync.RWMutex
	logger  zerolog.Logger
	closing atomic.Bool

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		registry: NewRegistry(),
		remote:   make(chan []byte, 256),
		logger:   logger.With().Str("component", "hub").Logger(),
		done:     make(chan struct{}),
	}
}

// Registry exposes the underlying connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// SetBridge attaches a cross-instance message bridge to the hub.
// When set, broadcasts are also forwarded to other instances.
func (h *Hub) SetBridge(b MessageBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// BroadcastToLocal delivers a frame from the bridge to local clients only.
// It does not re-publish, preventing loops between instances.
func (h *Hub) BroadcastToLocal(frame []byte) {
	select {
	case h.remote <- frame:
	case <-h.done:
	default:
		h.logger.Warn().Msg("remote queue full, dropping frame")
	}
}

// Run delivers frames received from the bridge. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case frame := <-h.remote:
			h.deliver(frame)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client to the registry.
func (h *Hub) Register(c *Client) error {
	if err := h.registry.Register(c); err != nil {
		return err
	}
	h.logger.Info().
		Str("session_id", c.ID).
		Str("username", c.Username).
		Int("sessions", h.registry.Len()).
		Msg("client registered")
	return nil
}

// Unregister removes a client from the registry. Missing ids are ignored.
func (h *Hub) Unregister(id string) bool {
	if !h.registry.Unregister(id) {
		return false
	}
	h.logger.Info().
		Str("session_id", id).
		Int("sessions", h.registry.Len()).
		Msg("client unregistered")
	return true
}

// Closing reports whether CloseAll has started.
func (h *Hub) Closing() bool {
	return h.closing.Load()
}

// CloseAll marks the hub as closing and closes every registered client with
// a going-away frame. Clients stay registered until their sessions
// unregister them.
func (h *Hub) CloseAll(reason string) int {
	h.closing.Store(true)
	clients := h.registry.Snapshot()
	for _, c := range clients {
		c.CloseWith(websocket.CloseGoingAway, reason)
	}
	h.logger.Info().Int("clients", len(clients)).Msg("closed all clients")
	return len(clients)
}
