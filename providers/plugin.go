package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/orchestra-mcp/chat/config"
	"github.com/orchestra-mcp/chat/src/auth"
	"github.com/orchestra-mcp/chat/src/bridge"
	"github.com/orchestra-mcp/chat/src/hub"
	"github.com/orchestra-mcp/chat/src/service"
	"github.com/orchestra-mcp/chat/src/store"
	"github.com/rs/zerolog"
)

// ChatPlugin wires the chat components together and owns their lifecycle.
type ChatPlugin struct {
	active   bool
	cfg      *config.ChatConfig
	logger   zerolog.Logger
	hub      *hub.Hub
	verifier *auth.JWTVerifier
	store    store.MessageStore
	service  *service.Service
	bridge   bridge.Bridge

	// sessions are served under this context; Deactivate cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewChatPlugin creates a new chat plugin instance.
func NewChatPlugin(cfg *config.ChatConfig, logger zerolog.Logger) *ChatPlugin {
	return &ChatPlugin{cfg: cfg, logger: logger}
}

func (p *ChatPlugin) ID() string      { return "orchestra/chat" }
func (p *ChatPlugin) Version() string { return "0.1.0" }

// Activate opens the store, starts the hub event loop and, when enabled,
// the Redis bridge.
func (p *ChatPlugin) Activate() error {
	if p.active {
		return nil
	}

	st, err := store.Open(p.cfg.Store(), p.logger)
	if err != nil {
		return fmt.Errorf("opening message store: %w", err)
	}

	p.store = st
	p.verifier = auth.NewJWTVerifier(p.cfg.JWTSecret, p.cfg.JWTIssuer)
	p.hub = hub.New(p.logger)
	p.service = service.New(p.hub, p.verifier, p.store, p.cfg.Service(), p.logger)
	p.ctx, p.cancel = context.WithCancel(context.Background())

	go p.hub.Run()

	if p.cfg.RedisEnabled {
		p.initBridge()
	}

	p.active = true
	p.logger.Info().
		Str("plugin", p.ID()).
		Str("store", p.cfg.StoreDriver).
		Str("path", p.cfg.ChatPath).
		Msg("chat plugin activated")
	return nil
}

// initBridge tries to start the Redis pub/sub bridge.
// If Redis is not reachable, the hub runs in standalone mode.
func (p *ChatPlugin) initBridge() {
	cfg := p.cfg.Redis()
	rb := bridge.NewRedisBridge(cfg, p.hub, p.logger)

	if err := rb.Start(); err != nil {
		p.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		_ = rb.Stop()
		return
	}

	p.bridge = rb
	p.hub.SetBridge(rb)
	p.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// Deactivate closes every session, then stops the bridge, the hub and the
// store. ctx bounds the wait for sessions to finish.
func (p *ChatPlugin) Deactivate(ctx context.Context) error {
	if !p.active {
		return nil
	}
	p.active = false

	var errs []error
	if err := p.service.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing sessions: %w", err))
	}
	p.cancel()

	if p.bridge != nil {
		p.hub.SetBridge(nil)
		if err := p.bridge.Stop(); err != nil {
			p.logger.Error().Err(err).Msg("bridge stop error")
		}
		p.bridge = nil
	}
	p.hub.Stop()

	if err := p.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing message store: %w", err))
	}

	p.logger.Info().Str("plugin", p.ID()).Msg("chat plugin deactivated")
	return errors.Join(errs...)
}
