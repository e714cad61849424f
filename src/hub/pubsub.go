package hub

import (
	"fmt"

	"github.com/orchestra-mcp/chat/src/types"
)

// Broadcast encodes ev once and delivers it to every client registered at
// call time. It returns the number of clients the frame was queued for,
// after every delivery has been attempted. Per-client failures are logged
// and absorbed.
func (h *Hub) Broadcast(ev types.Event) int {
	frame, err := types.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("encoding broadcast")
		return 0
	}
	h.publishToBridge(frame)
	return h.deliver(frame)
}

// SendTo delivers ev to a single registered client. The first frame sent to
// a held client is written before any queued broadcast.
func (h *Hub) SendTo(id string, ev types.Event) error {
	client, ok := h.registry.Get(id)
	if !ok {
		return fmt.Errorf("client %s: %w", id, ErrClientClosed)
	}
	frame, err := types.Marshal(ev)
	if err != nil {
		return err
	}
	return client.Send(frame)
}

func (h *Hub) deliver(frame []byte) int {
	delivered := 0
	for _, client := range h.registry.Snapshot() {
		if err := client.Deliver(frame); err != nil {
			h.logger.Warn().
				Err(err).
				Str("session_id", client.ID).
				Msg("delivery failed, dropping frame")
			continue
		}
		delivered++
	}
	return delivered
}

// publishToBridge forwards a frame to the bridge if one is attached.
func (h *Hub) publishToBridge(frame []byte) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(frame); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}
