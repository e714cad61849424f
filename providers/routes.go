package providers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// App builds the fiber application serving the HTTP API.
func (p *ChatPlugin) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "chat",
		ErrorHandler: errorHandler(p.logger),
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(requestLogger(p.logger))

	p.RegisterRoutes(app)
	return app
}

// RegisterRoutes registers the HTTP routes. The WebSocket upgrade itself is
// served by FastHTTPHandler since fiber v3 does not expose *fasthttp.RequestCtx.
func (p *ChatPlugin) RegisterRoutes(router fiber.Router) {
	router.Get("/", p.handleIndex)
	router.Get("/health", p.handleHealth)
	router.Get("/ws/info", p.handleInfo)
	router.Get("/api/chat/online", p.handleOnline)
	p.registerAdminRoutes(router)
}

// Handler returns the server handler: the chat path goes to the WebSocket
// upgrader and everything else to the fiber app.
func (p *ChatPlugin) Handler() fasthttp.RequestHandler {
	ws := p.FastHTTPHandler()
	api := p.App().Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == p.cfg.ChatPath {
			ws(ctx)
			return
		}
		api(ctx)
	}
}

func (p *ChatPlugin) handleIndex(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":    "chat",
		"version": p.Version(),
		"endpoints": fiber.Map{
			"websocket": p.cfg.ChatPath,
			"online":    "/api/chat/online",
			"health":    "/health",
		},
	})
}

func (p *ChatPlugin) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (p *ChatPlugin) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  p.cfg.ChatPath,
		"sessions":  p.hub.ClientCount(),
		"online":    len(p.service.OnlineUsers()),
	})
}

func (p *ChatPlugin) handleOnline(c fiber.Ctx) error {
	users := p.service.OnlineUsers()
	return c.JSON(fiber.Map{
		"success": true,
		"online":  len(users),
		"users":   users,
	})
}

// errorHandler renders every handler error as the JSON error body.
func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   message,
			"code":    code,
		})
	}
}

func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/ws/") && c.Path() != "/ws/info" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
		return err
	}
}
