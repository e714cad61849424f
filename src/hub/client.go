package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chat/src/types"
	"github.com/rs/zerolog"
)

var (
	// ErrClientClosed is returned when delivering to a client whose session ended.
	ErrClientClosed = errors.New("client closed")
	// ErrSendBufferFull is returned when a client's outbound queue is saturated.
	ErrSendBufferFull = errors.New("send buffer full")
)

// ClientOptions tune the per-connection writer.
type ClientOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// DefaultClientOptions mirrors the defaults of config.ChatConfig.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 15 * time.Second,
	}
}

// Client is one live chat session: a verified identity bound to a socket
// and a bounded outbound queue drained by WritePump.
type Client struct {
	ID         string
	UserID     int64
	Username   string
	RemoteAddr string

	conn        types.Conn
	send        chan []byte
	first       chan []byte
	held        bool
	firstOnce   sync.Once
	done        chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time
	opts        ClientOptions
	logger      zerolog.Logger
}

// NewClient wraps conn for the given identity.
func NewClient(id string, ident types.Identity, conn types.Conn, opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultClientOptions().SendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultClientOptions().WriteTimeout
	}
	return &Client{
		ID:          id,
		UserID:      ident.UserID,
		Username:    ident.Username,
		conn:        conn,
		send:        make(chan []byte, opts.SendBuffer),
		first:       make(chan []byte, 1),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
		opts:        opts,
		logger:      logger.With().Str("session_id", id).Logger(),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		UserID:      c.UserID,
		Username:    c.Username,
		ConnectedAt: c.connectedAt,
		RemoteAddr:  c.RemoteAddr,
	}
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// HoldUntilFirst makes WritePump wait for the first Send before it writes
// anything queued by Deliver. Call it before the client is registered and
// before WritePump starts.
func (c *Client) HoldUntilFirst() {
	c.held = true
}

// Send queues a private frame. On a held client the first Send is written
// ahead of every frame already queued.
func (c *Client) Send(frame []byte) error {
	if c.held {
		taken := false
		c.firstOnce.Do(func() {
			c.first <- frame
			taken = true
		})
		if taken {
			return nil
		}
	}
	return c.Deliver(frame)
}

// Deliver queues a frame without blocking.
func (c *Client) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// WritePump writes queued frames to the socket until the client is closed
// or a write fails. A failed write closes the client, which in turn
// unblocks the session's read loop.
func (c *Client) WritePump() {
	if c.held {
		select {
		case frame := <-c.first:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed, closing client")
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}

	var tick <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed, closing client")
				c.Close()
				return
			}
		case <-tick:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed, closing client")
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// CloseWith sends a close frame carrying code and reason, then closes.
func (c *Client) CloseWith(code int, reason string) {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.Close()
}

// Close stops the writer and releases the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("closing connection")
		}
	})
}
