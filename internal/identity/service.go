package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"

	"github.com/studcloud/sso/internal/credential"
	"github.com/studcloud/sso/internal/notification"
	"github.com/studcloud/sso/internal/token"
)

// TokenTTLs sets how long each kind of token stays valid.
type TokenTTLs struct {
	Mail     time.Duration
	Mobile   time.Duration
	Document time.Duration
	Password time.Duration
}

// DefaultTokenTTLs returns the validity windows used when none are configured.
func DefaultTokenTTLs() TokenTTLs {
	return TokenTTLs{
		Mail:     48 * time.Hour,
		Mobile:   15 * time.Minute,
		Document: 14 * 24 * time.Hour,
		Password: time.Hour,
	}
}

// Service manages the identity lifecycle: sign-up, sign-in, step confirmation and
// credential changes.
type Service struct {
	store        Store
	tokens       map[Step]*token.Generator
	notifier     notification.Notifier
	logger       *slog.Logger
	retry        RetryPolicy
	storeTimeout time.Duration
	phoneRegion  string
	reviewer     string
	now          func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier sets where issued tokens are delivered.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetryPolicy overrides the durable-write policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) {
		s.retry = p
	}
}

// WithStoreTimeout bounds every individual store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

// WithTokenTTLs sets the validity window per token kind.
func WithTokenTTLs(ttl TokenTTLs) Option {
	return func(s *Service) {
		s.tokens = generators(ttl, s.now)
	}
}

// WithPhoneRegion sets the region used to parse phone numbers given without a country code.
func WithPhoneRegion(region string) Option {
	return func(s *Service) {
		if region != "" {
			s.phoneRegion = strings.ToUpper(region)
		}
	}
}

// WithDocumentReviewer sets the address that receives document confirmation tokens.
// Without one the document step cannot be requested.
func WithDocumentReviewer(address string) Option {
	return func(s *Service) {
		s.reviewer = normalizeEmail(address)
	}
}

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
			for _, g := range s.tokens {
				g.WithClock(now)
			}
		}
	}
}

// NewService creates a new identity service on top of store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		notifier:     notification.NewLoggerNotifier(nil),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		retry:        DefaultRetryPolicy(),
		storeTimeout: 5 * time.Second,
		phoneRegion:  "RU",
		now:          time.Now,
	}
	s.tokens = generators(DefaultTokenTTLs(), s.now)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func generators(ttl TokenTTLs, now func() time.Time) map[Step]*token.Generator {
	return map[Step]*token.Generator{
		StepMail:     token.NewGenerator(ttl.Mail).WithClock(now),
		StepMobile:   token.NewGenerator(ttl.Mobile).WithClock(now),
		StepDocument: token.NewGenerator(ttl.Document).WithClock(now),
		StepPassword: token.NewGenerator(ttl.Password).WithClock(now),
	}
}

// SignUp creates a base-level account with a pending email confirmation.
// Uniqueness is left to the store; a taken email yields ErrConflict.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (User, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return User{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	cred, err := credential.New(in.Password)
	if err != nil {
		if errors.Is(err, credential.ErrEmptyPassword) {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return User{}, err
	}

	tok, err := s.tokens[StepMail].New()
	if err != nil {
		return User{}, err
	}

	profile := in.Profile
	profile.Phone = ""
	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: cred.Hash,
		PasswordSalt: cred.Salt,
		Profile:      profile,
		Verification: Verification{Mail: StepState{Pending: &tok}},
		CreatedAt:    s.now().UTC(),
	}

	if err := s.durable(ctx, "insert user", func(ctx context.Context) error {
		return s.store.InsertUnique(ctx, user)
	}); err != nil {
		return User{}, err
	}

	s.logger.Info("user signed up", slog.String("user_id", user.ID))
	s.deliver(ctx, user, StepMail, tok)
	return user, nil
}

// SignIn returns the user owning email when password matches. An unknown email and a
// wrong password are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (User, error) {
	var user User
	err := s.read(ctx, "find user by email", func(ctx context.Context) (err error) {
		user, err = s.store.FindByEmail(ctx, normalizeEmail(email))
		return err
	})
	if errors.Is(err, ErrNotFound) {
		credential.Verify(credential.Dummy(), password)
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if !credential.Verify(user.credential(), password) {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get fetches a user by identifier.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	var user User
	err := s.read(ctx, "find user by id", func(ctx context.Context) (err error) {
		user, err = s.store.FindByID(ctx, id)
		return err
	})
	return user, err
}

// ConfirmStep completes a verification step when token is the step's pending token.
// Match and update happen in one store operation, so of two racing confirmations
// only one can succeed.
func (s *Service) ConfirmStep(ctx context.Context, email string, step Step, supplied string) error {
	if !step.Verifiable() {
		return fmt.Errorf("%w: %q cannot be confirmed", ErrInvalidInput, step)
	}
	if supplied == "" {
		return ErrTokenMismatch
	}

	cond := Condition{Email: normalizeEmail(email), Step: step, Token: supplied, Now: s.now()}
	matched, err := s.updateIf(ctx, "confirm "+string(step), cond, Mutation{Step: step, Complete: true})
	if err != nil {
		return err
	}
	if matched == 0 {
		return ErrTokenMismatch
	}

	s.logger.Info("verification step confirmed", slog.String("step", string(step)))
	return nil
}

// RequestStep issues a fresh pending token for a verification step of the user.
// The mobile step records the phone number the token is sent to.
func (s *Service) RequestStep(ctx context.Context, userID string, step Step, phone string) (token.Token, error) {
	if !step.Verifiable() {
		return token.Token{}, fmt.Errorf("%w: %q cannot be requested", ErrInvalidInput, step)
	}
	if step == StepDocument && s.reviewer == "" {
		return token.Token{}, ErrReviewUnavailable
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return token.Token{}, err
	}

	tok, err := s.tokens[step].New()
	if err != nil {
		return token.Token{}, err
	}
	mut := Mutation{Step: step, Issue: &tok}
	if step == StepMobile {
		normalized, err := normalizePhone(phone, s.phoneRegion)
		if err != nil {
			return token.Token{}, err
		}
		mut.Phone = &normalized
		user.Profile.Phone = normalized
	}

	matched, err := s.updateIf(ctx, "issue "+string(step)+" token", Condition{Email: user.Email, Step: step}, mut)
	if err != nil {
		return token.Token{}, err
	}
	if matched == 0 {
		return token.Token{}, ErrStepCompleted
	}

	s.deliver(ctx, user, step, tok)
	return tok, nil
}

// RequestPasswordReset issues a password change key. Unknown emails succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	var user User
	err := s.read(ctx, "find user by email", func(ctx context.Context) (err error) {
		user, err = s.store.FindByEmail(ctx, normalizeEmail(email))
		return err
	})
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	tok, err := s.tokens[StepPassword].New()
	if err != nil {
		return err
	}
	mut := Mutation{Step: StepPassword, Issue: &tok}
	if _, err := s.updateIf(ctx, "issue password token", Condition{Email: user.Email, Step: StepPassword}, mut); err != nil {
		return err
	}

	s.deliver(ctx, user, StepPassword, tok)
	return nil
}

// ResetPassword sets a new password when supplied is the user's password change key.
// The key is consumed in the same operation.
func (s *Service) ResetPassword(ctx context.Context, email, supplied, password string) error {
	if supplied == "" {
		return ErrTokenMismatch
	}
	cred, err := credential.New(password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	cond := Condition{Email: normalizeEmail(email), Step: StepPassword, Token: supplied, Now: s.now()}
	matched, err := s.updateIf(ctx, "reset password", cond, Mutation{Step: StepPassword, Complete: true, Credential: &cred})
	if err != nil {
		return err
	}
	if matched == 0 {
		return ErrTokenMismatch
	}
	s.logger.Info("password reset")
	return nil
}

// ChangePassword replaces the credential of a signed-in user after checking the current password.
// An outstanding password change key is revoked with the same write.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !credential.Verify(user.credential(), current) {
		return ErrInvalidCredentials
	}
	cred, err := credential.New(next)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	mut := Mutation{Step: StepPassword, Complete: true, Credential: &cred}
	matched, err := s.updateIf(ctx, "change password", Condition{Email: user.Email, Step: StepPassword}, mut)
	if err != nil {
		return err
	}
	if matched == 0 {
		return ErrNotFound
	}
	s.logger.Info("password changed", slog.String("user_id", user.ID))
	return nil
}

// UpdateProfile replaces the display attributes of a user. The phone number is kept,
// it only changes through the mobile step.
func (s *Service) UpdateProfile(ctx context.Context, userID string, profile Profile) (User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	profile.Phone = user.Profile.Phone
	user.Profile = profile

	if err := s.durable(ctx, "save user", func(ctx context.Context) error {
		return s.store.Save(ctx, user)
	}); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) updateIf(ctx context.Context, op string, c Condition, m Mutation) (int64, error) {
	var matched int64
	err := s.durable(ctx, op, func(ctx context.Context) (err error) {
		matched, err = s.store.UpdateIf(ctx, c, m)
		return err
	})
	return matched, err
}

// deliver hands a token to the notifier. Delivery failures are logged; the token
// stays valid and can be requested again. Document tokens go to the reviewer, never
// to the user being reviewed.
func (s *Service) deliver(ctx context.Context, user User, step Step, tok token.Token) {
	msg := notification.Message{
		Channel:     notification.ChannelEmail,
		Destination: user.Email,
		Body:        tok.Value,
	}
	switch step {
	case StepMail:
		msg.Kind, msg.Subject = notification.KindMailConfirmation, "Confirm your email address"
	case StepMobile:
		msg.Kind, msg.Channel, msg.Destination = notification.KindMobileConfirmation, notification.ChannelSMS, user.Profile.Phone
	case StepDocument:
		msg.Kind, msg.Destination = notification.KindDocumentConfirmation, s.reviewer
		msg.Subject = fmt.Sprintf("Document review for %s (%s)", user.Email, user.ID)
	default:
		msg.Kind, msg.Subject = notification.KindPasswordReset, "Password reset"
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Error("token delivery failed",
			slog.String("user_id", user.ID),
			slog.String("kind", msg.Kind),
			slog.Any("error", err),
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", fmt.Errorf("%w: phone: %v", ErrInvalidInput, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: phone number is not valid", ErrInvalidInput)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
