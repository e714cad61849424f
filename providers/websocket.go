package providers

import (
	"errors"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/chat/src/auth"
	"github.com/orchestra-mcp/chat/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Access is gated by the token, not by origin.
	CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
}

// FastHTTPHandler returns a raw fasthttp handler for chat WebSocket upgrades.
// The token is read from the "token" query parameter, or from a bearer
// Authorization header when the query carries none.
func (p *ChatPlugin) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !websocket.FastHTTPIsWebSocketUpgrade(ctx) {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"success":false,"error":"WebSocket upgrade required","code":426}`)
			return
		}

		// The request context is recycled once the handler returns, so copy
		// what the session needs before upgrading.
		token := requestToken(ctx)
		remoteAddr := ctx.RemoteAddr().String()
		svc := p.service
		base := p.ctx
		logger := p.logger

		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			logServeError(logger, remoteAddr, svc.Serve(base, conn, token, remoteAddr))
		})
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// logServeError reports how a session ended. Rejected handshakes and
// sessions refused during shutdown are expected and stay at debug level.
func logServeError(logger zerolog.Logger, remoteAddr string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, service.ErrTokenMissing), errors.Is(err, auth.ErrTokenInvalid):
		logger.Debug().Err(err).Str("remote_addr", remoteAddr).Msg("chat handshake rejected")
	case errors.Is(err, service.ErrShuttingDown):
		logger.Debug().Err(err).Str("remote_addr", remoteAddr).Msg("chat session refused during shutdown")
	default:
		logger.Warn().Err(err).Str("remote_addr", remoteAddr).Msg("chat session failed")
	}
}

func requestToken(ctx *fasthttp.RequestCtx) string {
	if token := string(ctx.QueryArgs().Peek("token")); token != "" {
		return token
	}
	return bearerToken(string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)))
}

func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
