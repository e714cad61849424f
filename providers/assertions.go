package providers

import (
	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chat/src/auth"
	"github.com/orchestra-mcp/chat/src/bridge"
	"github.com/orchestra-mcp/chat/src/hub"
	"github.com/orchestra-mcp/chat/src/store"
	"github.com/orchestra-mcp/chat/src/types"
)

// Compile-time interface assertions.
var (
	_ types.Conn             = (*websocket.Conn)(nil)
	_ auth.Verifier          = (*auth.JWTVerifier)(nil)
	_ bridge.Bridge          = (*bridge.RedisBridge)(nil)
	_ bridge.BroadcastTarget = (*hub.Hub)(nil)
	_ hub.MessageBridge      = (*bridge.RedisBridge)(nil)
	_ store.MessageStore     = (*store.SQLiteStore)(nil)
	_ store.MessageStore     = (*store.BadgerStore)(nil)
)
