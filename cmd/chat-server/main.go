package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestra-mcp/chat/config"
	"github.com/orchestra-mcp/chat/providers"
	"github.com/orchestra-mcp/chat/src/logging"
	"github.com/valyala/fasthttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the server and blocks until a signal or a server error.
// Returning instead of exiting lets deferred cleanup run.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	plugin := providers.NewChatPlugin(cfg, logger)
	if err := plugin.Activate(); err != nil {
		return err
	}

	server := &fasthttp.Server{
		Handler:            plugin.Handler(),
		Name:               "chat",
		MaxRequestBodySize: 1 << 20,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr()).Str("chat_path", cfg.ChatPath).Msg("chat server listening")
		if err := server.ListenAndServe(cfg.Addr()); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down gracefully")
	case serveErr = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Sessions first: hijacked WebSocket connections are not tracked by the
	// HTTP server.
	if err := plugin.Deactivate(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("chat shutdown incomplete")
	}
	if err := server.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("server stopped")
	return serveErr
}
