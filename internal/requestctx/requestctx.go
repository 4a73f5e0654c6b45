package requestctx

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studcloud/sso/internal/authlevel"
)

type (
	userIDKey    struct{}
	sessionKey   struct{}
	levelKey     struct{}
	requestIDKey struct{}
)

// SetUser records the authenticated user and its current trust level.
func SetUser(c *fiber.Ctx, userID string, level authlevel.Level) {
	c.Locals(userIDKey{}, userID)
	c.Locals(levelKey{}, level)
}

// UserID returns the authenticated user identifier, or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	value, _ := c.Locals(userIDKey{}).(string)
	return value
}

// SetSession records the identifier of the session the request was made with.
func SetSession(c *fiber.Ctx, id string) {
	c.Locals(sessionKey{}, id)
}

// SessionID returns the session identifier, or "" for anonymous requests.
func SessionID(c *fiber.Ctx) string {
	value, _ := c.Locals(sessionKey{}).(string)
	return value
}

// Level returns the trust level of the request. Anonymous requests are level 0.
func Level(c *fiber.Ctx) authlevel.Level {
	value, ok := c.Locals(levelKey{}).(authlevel.Level)
	if !ok {
		return authlevel.Anonymous
	}
	return value
}

// SetRequestID stores the request identifier.
func SetRequestID(c *fiber.Ctx, id string) {
	c.Locals(requestIDKey{}, id)
}

// RequestID returns the request identifier, if any.
func RequestID(c *fiber.Ctx) string {
	value, _ := c.Locals(requestIDKey{}).(string)
	return value
}
