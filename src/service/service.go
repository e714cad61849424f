package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orchestra-mcp/chat/src/auth"
	"github.com/orchestra-mcp/chat/src/hub"
	"github.com/orchestra-mcp/chat/src/store"
	"github.com/orchestra-mcp/chat/src/types"
	"github.com/rs/zerolog"
)

var (
	// ErrTokenMissing is returned when the handshake carries no token.
	ErrTokenMissing = errors.New("token required")
	// ErrShuttingDown is returned for handshakes that arrive during shutdown.
	ErrShuttingDown = errors.New("chat service shutting down")
)

// Options configure chat sessions.
type Options struct {
	HistoryLimit   int
	MaxMessageSize int64
	PongTimeout    time.Duration
	Client         hub.ClientOptions
}

// DefaultOptions mirrors the defaults of config.ChatConfig.
func DefaultOptions() Options {
	return Options{
		HistoryLimit:   50,
		MaxMessageSize: 64 * 1024,
		PongTimeout:    30 * time.Second,
		Client:         hub.DefaultClientOptions(),
	}
}

// Service runs chat sessions on top of a hub.
type Service struct {
	hub      *hub.Hub
	verifier auth.Verifier
	store    store.MessageStore
	opts     Options
	logger   zerolog.Logger

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// New creates a chat service.
func New(h *hub.Hub, verifier auth.Verifier, st store.MessageStore, opts Options, logger zerolog.Logger) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultOptions().HistoryLimit
	}
	return &Service{
		hub:      h,
		verifier: verifier,
		store:    st,
		opts:     opts,
		logger:   logger.With().Str("component", "chat").Logger(),
	}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// OnlineUsers returns the distinct usernames currently connected.
func (s *Service) OnlineUsers() []string {
	return s.hub.OnlineUsers()
}

// Sessions returns info for every live session.
func (s *Service) Sessions() []types.ClientInfo {
	return s.hub.Clients()
}

// Notify broadcasts a server notification and returns how many local
// sessions it was queued for.
func (s *Service) Notify(text string) int {
	n := s.hub.Broadcast(types.Notification{Text: text})
	s.logger.Info().Int("delivered", n).Msg("notification broadcast")
	return n
}

// Shutdown stops accepting sessions, closes every live session without
// announcing departures, and waits for the sessions to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.hub.CloseAll("server shutting down")

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("all chat sessions closed")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("shutdown deadline reached with sessions still running")
		return ctx.Err()
	}
}

// begin reserves a session slot unless the service is shutting down.
func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions.Add(1)
	return true
}
