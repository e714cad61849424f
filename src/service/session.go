package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/chat/src/hub"
	"github.com/orchestra-mcp/chat/src/types"
	"github.com/rs/zerolog"
)

// State is the lifecycle stage of a chat session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const closeWriteTimeout = time.Second

type session struct {
	svc        *Service
	conn       types.Conn
	remoteAddr string
	state      State
	ident      types.Identity
	client     *hub.Client
	logger     zerolog.Logger
}

// Serve runs one chat session on an upgraded connection and returns when it
// has ended. The token is the bearer token from the connection request.
//
// Authentication failures close the socket with a policy-violation frame and
// are returned. Once the session is active, store and delivery failures are
// logged and absorbed; Serve then returns nil when the socket closes, ctx is
// cancelled or the service shuts down.
func (s *Service) Serve(ctx context.Context, conn types.Conn, token, remoteAddr string) error {
	if !s.begin() {
		closeConn(conn, websocket.CloseGoingAway, "server shutting down")
		return ErrShuttingDown
	}
	defer s.sessions.Done()

	ss := &session{
		svc:        s,
		conn:       conn,
		remoteAddr: remoteAddr,
		state:      StateConnecting,
		logger:     s.logger.With().Str("remote_addr", remoteAddr).Logger(),
	}
	return ss.run(ctx, token)
}

func (ss *session) run(ctx context.Context, token string) error {
	if err := ss.authenticate(token); err != nil {
		ss.logger.Info().Err(err).Msg("handshake rejected")
		reason := "invalid token"
		if errors.Is(err, ErrTokenMissing) {
			reason = "token required"
		}
		closeConn(ss.conn, websocket.ClosePolicyViolation, reason)
		ss.transition(StateClosed)
		return err
	}
	ss.transition(StateAuthenticated)

	if err := ss.activate(ctx); err != nil {
		ss.transition(StateClosed)
		return err
	}
	ss.transition(StateActive)
	defer ss.close()

	stop := context.AfterFunc(ctx, ss.client.Close)
	defer stop()

	ss.readLoop(ctx)
	return nil
}

func (ss *session) authenticate(token string) error {
	if token == "" {
		return ErrTokenMissing
	}
	ident, err := ss.svc.verifier.Verify(token)
	if err != nil {
		return err
	}
	ss.ident = ident
	ss.logger = ss.logger.With().
		Int64("user_id", ident.UserID).
		Str("username", ident.Username).
		Logger()
	return nil
}

// activate registers the session, replays history privately and announces
// the join to everyone, the new session included.
//
// The client is held until the history frame arrives, so history is written
// first while broadcasts made after registration queue behind it. A message
// committed around the history read may therefore arrive twice; its id
// identifies the duplicate.
func (ss *session) activate(ctx context.Context) error {
	opts := ss.svc.opts
	h := ss.svc.hub

	id := fmt.Sprintf("%d_%s", ss.ident.UserID, uuid.NewString())
	ss.logger = ss.logger.With().Str("session_id", id).Logger()
	ss.client = hub.NewClient(id, ss.ident, ss.conn, opts.Client, ss.logger)
	ss.client.RemoteAddr = ss.remoteAddr
	ss.client.HoldUntilFirst()

	ss.configureReads()

	if err := h.Register(ss.client); err != nil {
		ss.client.CloseWith(websocket.CloseInternalServerErr, "session conflict")
		return err
	}
	// CloseAll sets the closing flag before it snapshots the registry, so a
	// session registered after that snapshot sees the flag here.
	if h.Closing() {
		h.Unregister(id)
		ss.client.CloseWith(websocket.CloseGoingAway, "server shutting down")
		return ErrShuttingDown
	}

	go ss.client.WritePump()

	history, err := ss.svc.store.Recent(ctx, opts.HistoryLimit)
	if err != nil {
		ss.logger.Error().Err(err).Msg("loading history, sending empty window")
		history = nil
	}
	if err := h.SendTo(id, types.History{Messages: history}); err != nil {
		h.Unregister(id)
		if h.Closing() {
			return ErrShuttingDown
		}
		ss.client.CloseWith(websocket.CloseInternalServerErr, "internal error")
		return fmt.Errorf("sending history: %w", err)
	}

	h.Broadcast(types.Join{Username: ss.ident.Username})
	return nil
}

func (ss *session) configureReads() {
	opts := ss.svc.opts
	if opts.MaxMessageSize > 0 {
		ss.conn.SetReadLimit(opts.MaxMessageSize)
	}
	if opts.PongTimeout <= 0 {
		return
	}
	if err := ss.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout)); err != nil {
		ss.logger.Debug().Err(err).Msg("setting read deadline")
	}
	ss.conn.SetPongHandler(func(string) error {
		return ss.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})
}

// readLoop processes inbound frames one at a time: a text frame is persisted
// and then broadcast before the next frame is read.
func (ss *session) readLoop(ctx context.Context) {
	for {
		messageType, data, err := ss.conn.ReadMessage()
		if err != nil {
			ss.logReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		ss.handleText(ctx, string(data))
	}
}

func (ss *session) handleText(ctx context.Context, text string) {
	msg, err := ss.svc.store.Append(ctx, ss.ident, text)
	if err != nil {
		ss.logger.Error().Err(err).Msg("persisting message, dropping it")
		return
	}
	ss.svc.hub.Broadcast(types.Chat{Message: msg})
}

// close unregisters before announcing the departure so the leaving session
// is not among the recipients.
func (ss *session) close() {
	ss.transition(StateClosing)

	h := ss.svc.hub
	h.Unregister(ss.client.ID)
	if !h.Closing() {
		h.Broadcast(types.Leave{Username: ss.ident.Username})
	}
	ss.client.Close()

	ss.transition(StateClosed)
}

func (ss *session) transition(next State) {
	ss.logger.Debug().
		Stringer("from", ss.state).
		Stringer("to", next).
		Msg("session state")
	ss.state = next
}

func (ss *session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		ss.logger.Warn().Int64("limit", ss.svc.opts.MaxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		ss.logger.Info().Msg("client disconnected")
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		ss.logger.Info().Err(err).Msg("client connection dropped")
	default:
		ss.logger.Warn().Err(err).Msg("read error")
	}
}

// closeConn writes a close frame and releases a socket that has no client.
func closeConn(conn types.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWriteTimeout))
	_ = conn.Close()
}
