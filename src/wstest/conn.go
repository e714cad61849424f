// Package wstest provides an in-memory WebSocket connection for tests.
package wstest

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chat/src/types"
)

// ErrWriteFailed is returned by WriteMessage after FailWrites.
var ErrWriteFailed = errors.New("wstest: write failed")

type frame struct {
	messageType int
	data        []byte
}

// Conn implements types.Conn without a network. Frames pushed with Send are
// returned by ReadMessage; text frames written by the server are recorded.
type Conn struct {
	inbound chan frame

	mu          sync.Mutex
	written     [][]byte
	pings       int
	closeCode   int
	closeReason string
	failWrites  bool
	readLimit   int64
	closed      bool
	closedCh    chan struct{}
	dropErr     error
}

var _ types.Conn = (*Conn)(nil)

// NewConn returns an open connection.
func NewConn() *Conn {
	return &Conn{
		inbound:  make(chan frame, 64),
		closedCh: make(chan struct{}),
	}
}

// Send queues a text frame for the server to read.
func (c *Conn) Send(text string) {
	c.inbound <- frame{messageType: websocket.TextMessage, data: []byte(text)}
}

// SendBinary queues a binary frame for the server to read.
func (c *Conn) SendBinary(data []byte) {
	c.inbound <- frame{messageType: websocket.BinaryMessage, data: data}
}

// Drop simulates an abrupt network failure.
func (c *Conn) Drop() {
	c.mu.Lock()
	c.dropErr = io.ErrUnexpectedEOF
	c.mu.Unlock()
	_ = c.Close()
}

// FailWrites makes every later WriteMessage call fail.
func (c *Conn) FailWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWrites = true
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.inbound:
		return f.messageType, f.data, nil
	case <-c.closedCh:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.dropErr != nil {
			return 0, nil, c.dropErr
		}
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	if c.failWrites {
		return ErrWriteFailed
	}
	switch messageType {
	case websocket.TextMessage:
		c.written = append(c.written, append([]byte(nil), data...))
	case websocket.PingMessage:
		c.pings++
	}
	return nil
}

func (c *Conn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		c.closeCode = int(binary.BigEndian.Uint16(data[:2]))
		c.closeReason = string(data[2:])
	}
	return nil
}

func (c *Conn) SetReadLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLimit = limit
}

func (c *Conn) SetReadDeadline(time.Time) error  { return nil }
func (c *Conn) SetWriteDeadline(time.Time) error { return nil }
func (c *Conn) SetPongHandler(func(string) error) {}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseFrame returns the code and reason of the last close frame written.
func (c *Conn) CloseFrame() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

// ReadLimit returns the limit set by the server.
func (c *Conn) ReadLimit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLimit
}

// Written returns a copy of the text frames written so far.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Envelopes decodes the text frames written so far.
func (c *Conn) Envelopes() []types.Envelope {
	var out []types.Envelope
	for _, raw := range c.Written() {
		var env types.Envelope
		if err := json.Unmarshal(raw, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// EnvelopesOf returns the decoded envelopes of the given kind.
func (c *Conn) EnvelopesOf(kind types.Kind) []types.Envelope {
	var out []types.Envelope
	for _, env := range c.Envelopes() {
		if env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}
