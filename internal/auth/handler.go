package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/studcloud/sso/internal/identity"
)

// CookieName is the cookie carrying the session token.
const CookieName = "sso_session"

// Handler exposes sign-in and sign-out.
type Handler struct {
	ids          *identity.Service
	sessions     *Sessions
	secureCookie bool
}

// NewHandler wires the auth endpoints.
func NewHandler(ids *identity.Service, sessions *Sessions, secureCookie bool) *Handler {
	return &Handler{ids: ids, sessions: sessions, secureCookie: secureCookie}
}

type signInRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signInResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Level       int    `json:"level"`
}

// SignIn checks the credential and opens a session.
func (h *Handler) SignIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := identity.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.ids.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return identity.HTTPError(err)
	}
	signed, exp, err := h.sessions.Issue(user.ID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "session unavailable")
	}

	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  exp,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Status(http.StatusOK).JSON(signInResponse{
		UserID:      user.ID,
		AccessToken: signed,
		ExpiresIn:   int64(h.sessions.TTL().Seconds()),
		Level:       int(user.Level()),
	})
}

// SignOut drops the session cookie. Bearer tokens expire on their own.
func (h *Handler) SignOut(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.SendStatus(http.StatusNoContent)
}
