package hub

import (
	"slices"
	"strings"

	"github.com/orchestra-mcp/chat/src/types"
	"github.com/samber/lo"
)

// OnlineUsers returns the distinct usernames of live sessions.
func (h *Hub) OnlineUsers() []string {
	return h.registry.Usernames()
}

// ClientCount returns the number of live sessions.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// Clients returns info for every live session, oldest first.
func (h *Hub) Clients() []types.ClientInfo {
	infos := lo.Map(h.registry.Snapshot(), func(c *Client, _ int) types.ClientInfo {
		return c.Info()
	})
	slices.SortFunc(infos, func(a, b types.ClientInfo) int {
		if c := a.ConnectedAt.Compare(b.ConnectedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return infos
}

// ClientInfo returns info for a connected client, or nil.
func (h *Hub) ClientInfo(id string) *types.ClientInfo {
	client, ok := h.registry.Get(id)
	if !ok {
		return nil
	}
	info := client.Info()
	return &info
}
