package providers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/chat/src/types"
	"github.com/samber/lo"
)

// RoleAdmin is the token role allowed on the admin routes.
const RoleAdmin = "ADMIN"

var validate = validator.New()

type notifyRequest struct {
	Message string `json:"message" validate:"required,max=1000"`
}

type sessionView struct {
	ID          string `json:"id"`
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	RemoteAddr  string `json:"remoteAddr,omitempty"`
	ConnectedAt string `json:"connectedAt"`
}

func (p *ChatPlugin) registerAdminRoutes(router fiber.Router) {
	admin := router.Group("/api/admin/chat", p.requireAdmin)
	admin.Get("/sessions", p.handleSessions)
	admin.Get("/sessions/:id", p.handleSession)
	admin.Post("/notify", p.handleNotify)
}

// requireAdmin accepts requests carrying a valid bearer token with the
// admin role.
func (p *ChatPlugin) requireAdmin(c fiber.Ctx) error {
	token := bearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "bearer token required")
	}
	ident, err := p.verifier.Verify(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	if ident.Role != RoleAdmin {
		return fiber.NewError(fiber.StatusForbidden, "admin role required")
	}
	c.Locals("identity", ident)
	return c.Next()
}

func toSessionView(info types.ClientInfo, _ int) sessionView {
	return sessionView{
		ID:          info.ID,
		UserID:      info.UserID,
		Username:    info.Username,
		RemoteAddr:  info.RemoteAddr,
		ConnectedAt: types.FormatTimestamp(info.ConnectedAt),
	}
}

func (p *ChatPlugin) handleSessions(c fiber.Ctx) error {
	sessions := lo.Map(p.service.Sessions(), toSessionView)
	return c.JSON(fiber.Map{
		"success":  true,
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (p *ChatPlugin) handleSession(c fiber.Ctx) error {
	info := p.hub.ClientInfo(c.Params("id"))
	if info == nil {
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"session": toSessionView(*info, 0),
	})
}

func (p *ChatPlugin) handleNotify(c fiber.Ctx) error {
	var req notifyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "message is required and at most 1000 characters")
	}

	admin, _ := c.Locals("identity").(types.Identity)
	delivered := p.service.Notify(req.Message)
	p.logger.Info().
		Str("admin", admin.Username).
		Int("delivered", delivered).
		Msg("admin notification sent")

	return c.JSON(fiber.Map{
		"success":   true,
		"delivered": delivered,
	})
}
