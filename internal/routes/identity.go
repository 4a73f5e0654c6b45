package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studcloud/sso/internal/authlevel"
	"github.com/studcloud/sso/internal/identity"
	"github.com/studcloud/sso/internal/middleware"
)

// RegisterIdentityRoutes wires the public account endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler, idempotency fiber.Handler) {
	group := r.Group("/identity")
	if idempotency != nil {
		group.Post("/signup", idempotency, h.SignUp)
	} else {
		group.Post("/signup", h.SignUp)
	}
	group.Post("/confirm/:step", h.Confirm)
	group.Post("/password/reset", h.RequestPasswordReset)
	group.Post("/password/reset/confirm", h.ResetPassword)
}

// RegisterMeRoutes wires endpoints acting on the signed-in user, each behind the
// trust level it needs.
func RegisterMeRoutes(r fiber.Router, h *identity.Handler, gate *authlevel.Gate) {
	me := r.Group("/me")
	base := middleware.RequireLevel(gate, authlevel.Base)

	me.Get("", base, h.Me)
	me.Put("/profile", base, h.UpdateProfile)
	me.Post("/password", base, h.ChangePassword)
	me.Post("/verify/:step", func(c *fiber.Ctx) error {
		step, err := identity.ParseStep(c.Params("step"))
		if err != nil {
			return identity.HTTPError(err)
		}
		return middleware.RequireLevel(gate, RequestLevel(step))(c)
	}, h.RequestStep)
}

// RequestLevel is the trust level needed to start a verification step: steps are
// requested in order, each one after the previous is confirmed.
func RequestLevel(step identity.Step) authlevel.Level {
	switch step {
	case identity.StepMobile:
		return authlevel.Mail
	case identity.StepDocument:
		return authlevel.Phone
	default:
		return authlevel.Base
	}
}
