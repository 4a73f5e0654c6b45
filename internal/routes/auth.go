package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studcloud/sso/internal/auth"
)

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/signin", rateLimiter, h.SignIn)
	} else {
		group.Post("/signin", h.SignIn)
	}
	group.Post("/signout", h.SignOut)
}
