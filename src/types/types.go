package types

import "time"

// TimestampLayout is the wire format of message timestamps. Clients parse it
// verbatim, so it carries no zone offset.
const TimestampLayout = "2006-01-02 15:04:05"

// Identity is the verified subject of a bearer token.
type Identity struct {
	UserID   int64
	Username string
	Role     string
}

// StoredMessage is a persisted chat line.
type StoredMessage struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// FormatTimestamp renders t in the wire layout, in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ClientInfo holds metadata about a live chat session.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"userId"`
	Username    string    `json:"username"`
	ConnectedAt time.Time `json:"connectedAt"`
	RemoteAddr  string    `json:"remoteAddr,omitempty"`
}

// Conn abstracts a WebSocket connection for testability.
// *websocket.Conn from fasthttp/websocket satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}
