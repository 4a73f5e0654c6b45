package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/studcloud/sso/internal/auth"
	"github.com/studcloud/sso/internal/authlevel"
	"github.com/studcloud/sso/internal/identity"
	"github.com/studcloud/sso/internal/requestctx"
)

// Session resolves the caller from a bearer token or the session cookie and records
// the user's current trust level. Requests without a usable session continue as
// anonymous; RequireLevel decides whether that is enough.
func Session(sessions *auth.Sessions, ids *identity.Service, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := sessionToken(c)
		if raw == "" {
			return c.Next()
		}
		session, err := sessions.Parse(raw)
		if err != nil {
			logger.Debug("session rejected", slog.String("path", c.Path()))
			return c.Next()
		}
		user, err := ids.Get(c.UserContext(), session.UserID)
		switch {
		case errors.Is(err, identity.ErrNotFound):
			return c.Next()
		case err != nil:
			logger.Error("session lookup failed",
				slog.String("session", session.ID),
				slog.String("user_id", session.UserID),
				slog.Any("error", err),
			)
			return identity.HTTPError(err)
		}
		requestctx.SetSession(c, session.ID)
		requestctx.SetUser(c, user.ID, user.Level())
		return c.Next()
	}
}

func sessionToken(c *fiber.Ctx) string {
	authz := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return c.Cookies(auth.CookieName)
}

// RequireLevel rejects requests whose trust level is below required.
func RequireLevel(gate *authlevel.Gate, required authlevel.Level) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := authlevel.Request{
			Session:   requestctx.SessionID(c),
			UserID:    requestctx.UserID(c),
			RequestID: requestctx.RequestID(c),
			Resource:  c.Method() + " " + c.Path(),
		}
		err := gate.Require(c.UserContext(), req, requestctx.Level(c), required)
		if err == nil {
			return c.Next()
		}
		var denied *authlevel.DeniedError
		if !errors.As(err, &denied) {
			return err
		}
		return c.Status(denied.Code).JSON(fiber.Map{
			"code":           denied.Code,
			"message":        denied.Reason,
			"required_level": int(denied.Required),
			"current_level":  int(denied.Current),
		})
	}
}
