package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/studcloud/sso/internal/requestctx"
)

var validate = validator.New()

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type profileRequest struct {
	Name       string `json:"name"       validate:"max=128"`
	Surname    string `json:"surname"    validate:"max=128"`
	Photo      string `json:"photo"      validate:"omitempty,url"`
	University string `json:"university" validate:"max=256"`
	Faculty    string `json:"faculty"    validate:"max=256"`
	Group      string `json:"group"      validate:"max=64"`
	Year       int    `json:"year"       validate:"gte=0,lte=10"`
}

func (p profileRequest) profile() Profile {
	return Profile{
		Name:       p.Name,
		Surname:    p.Surname,
		Photo:      p.Photo,
		University: p.University,
		Faculty:    p.Faculty,
		Group:      p.Group,
		Year:       p.Year,
	}
}

type signUpRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	profileRequest
}

type confirmRequest struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetConfirmRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Token    string `json:"token"    validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type changePasswordRequest struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password"     validate:"required,min=8,max=128"`
}

type requestStepRequest struct {
	Phone string `json:"phone"`
}

type profileResponse struct {
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	Photo      string `json:"photo,omitempty"`
	University string `json:"university,omitempty"`
	Faculty    string `json:"faculty,omitempty"`
	Group      string `json:"group,omitempty"`
	Year       int    `json:"year,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type verificationResponse struct {
	Mail     bool `json:"mail"`
	Mobile   bool `json:"mobile"`
	Document bool `json:"document"`
}

// UserResponse is the public view of a user record.
type UserResponse struct {
	UserID       string               `json:"user_id"`
	Email        string               `json:"email"`
	Level        int                  `json:"level"`
	LevelName    string               `json:"level_name"`
	Profile      profileResponse      `json:"profile"`
	Verification verificationResponse `json:"verification"`
	CreatedAt    time.Time            `json:"created_at"`
}

// NewUserResponse renders a user without any secret material.
func NewUserResponse(u User) UserResponse {
	level := u.Level()
	return UserResponse{
		UserID:    u.ID,
		Email:     u.Email,
		Level:     int(level),
		LevelName: level.String(),
		Profile: profileResponse{
			Name:       u.Profile.Name,
			Surname:    u.Profile.Surname,
			Photo:      u.Profile.Photo,
			University: u.Profile.University,
			Faculty:    u.Profile.Faculty,
			Group:      u.Profile.Group,
			Year:       u.Profile.Year,
			Phone:      u.Profile.Phone,
		},
		Verification: verificationResponse{
			Mail:     u.Verification.Mail.Done,
			Mobile:   u.Verification.Mobile.Done,
			Document: u.Verification.Document.Done,
		},
		CreatedAt: u.CreatedAt,
	}
}

// SignUp handles account creation.
func (h *Handler) SignUp(c *fiber.Ctx) error {
	var req signUpRequest
	if err := Bind(c, &req); err != nil {
		return err
	}
	user, err := h.service.SignUp(c.UserContext(), SignUpInput{Email: req.Email, Password: req.Password, Profile: req.profile()})
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(NewUserResponse(user))
}

// Confirm completes the verification step named in the path.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	step, err := ParseStep(c.Params("step"))
	if err != nil {
		return HTTPError(err)
	}
	var req confirmRequest
	if err := Bind(c, &req); err != nil {
		return err
	}
	if err := h.service.ConfirmStep(c.UserContext(), req.Email, step, req.Token); err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"step": string(step), "status": "confirmed"})
}

// RequestPasswordReset sends a password change key. The response does not reveal
// whether the email is registered.
func (h *Handler) RequestPasswordReset(c *fiber.Ctx) error {
	var req resetRequest
	if err := Bind(c, &req); err != nil {
		return err
	}
	if err := h.service.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"status": "requested"})
}

// ResetPassword sets a new password using a password change key.
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req resetConfirmRequest
	if err := Bind(c, &req); err != nil {
		return err
	}
	if err := h.service.ResetPassword(c.UserContext(), req.Email, req.Token, req.Password); err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "password_reset"})
}

// Me returns the signed-in user.
func (h *Handler) Me(c *fiber.Ctx) error {
	user, err := h.service.Get(c.UserContext(), requestctx.UserID(c))
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(NewUserResponse(user))
}

// UpdateProfile replaces the display attributes of the signed-in user.
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	var req profileRequest
	if err := Bind(c, &req); err != nil {
		return err
	}
	user, err := h.service.UpdateProfile(c.UserContext(), requestctx.UserID(c), req.profile())
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(NewUserResponse(user))
}

// ChangePassword replaces the password of the signed-in user.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := Bind(c, &req); err != nil {
		return err
	}
	if err := h.service.ChangePassword(c.UserContext(), requestctx.UserID(c), req.Current, req.New); err != nil {
		return HTTPError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// RequestStep issues a confirmation token for the step named in the path.
func (h *Handler) RequestStep(c *fiber.Ctx) error {
	step, err := ParseStep(c.Params("step"))
	if err != nil {
		return HTTPError(err)
	}
	var req requestStepRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if step == StepMobile && req.Phone == "" {
		return fiber.NewError(http.StatusBadRequest, "phone is required")
	}
	tok, err := h.service.RequestStep(c.UserContext(), requestctx.UserID(c), step, req.Phone)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"step": string(step), "expires_at": tok.ExpiresAt})
}

// Bind decodes the request body into dst and validates it.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fiber.NewError(http.StatusBadRequest, "invalid field "+verrs[0].Field()+": "+verrs[0].Tag())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// HTTPError maps service errors onto HTTP statuses.
func HTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusConflict, ErrConflict.Error())
	case errors.Is(err, ErrStepCompleted):
		return fiber.NewError(http.StatusConflict, ErrStepCompleted.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return fiber.NewError(http.StatusUnauthorized, ErrInvalidCredentials.Error())
	case errors.Is(err, ErrTokenMismatch):
		return fiber.NewError(http.StatusForbidden, ErrTokenMismatch.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrReviewUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, ErrReviewUnavailable.Error())
	case errors.Is(err, ErrPersistence):
		return fiber.NewError(http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
