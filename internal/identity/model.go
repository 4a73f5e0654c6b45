package identity

import (
	"fmt"
	"time"

	"github.com/studcloud/sso/internal/authlevel"
	"github.com/studcloud/sso/internal/credential"
	"github.com/studcloud/sso/internal/token"
)

// Step names a token-gated action on the user record.
type Step string

const (
	StepMail     Step = "mail"
	StepMobile   Step = "mobile"
	StepDocument Step = "document"
	// StepPassword is the password change key. It has no completion flag.
	StepPassword Step = "password"
)

// ParseStep resolves a verification step name.
func ParseStep(name string) (Step, error) {
	switch s := Step(name); s {
	case StepMail, StepMobile, StepDocument:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown verification step %q", ErrInvalidInput, name)
	}
}

// Verifiable reports whether the step raises the trust level once confirmed.
func (s Step) Verifiable() bool {
	return s == StepMail || s == StepMobile || s == StepDocument
}

// Profile holds display attributes. Phone is only written by the mobile step.
type Profile struct {
	Name       string
	Surname    string
	Photo      string
	University string
	Faculty    string
	Group      string
	Year       int
	Phone      string
}

// StepState is the progress of one verification step.
type StepState struct {
	Done    bool
	Pending *token.Token
}

// Verification groups the per-step state of a user.
type Verification struct {
	Mail     StepState
	Mobile   StepState
	Document StepState
	Password *token.Token
}

// State returns the state of a verifiable step.
func (v Verification) State(s Step) StepState {
	switch s {
	case StepMail:
		return v.Mail
	case StepMobile:
		return v.Mobile
	case StepDocument:
		return v.Document
	default:
		return StepState{Pending: v.Password}
	}
}

func (v *Verification) state(s Step) *StepState {
	switch s {
	case StepMail:
		return &v.Mail
	case StepMobile:
		return &v.Mobile
	case StepDocument:
		return &v.Document
	default:
		return nil
	}
}

// User is the identity record.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	PasswordSalt []byte
	Profile      Profile
	Verification Verification
	CreatedAt    time.Time
}

// Level computes the trust level from the verification flags.
func (u User) Level() authlevel.Level {
	return authlevel.Compute(authlevel.Flags{
		Mail:     u.Verification.Mail.Done,
		Mobile:   u.Verification.Mobile.Done,
		Document: u.Verification.Document.Done,
	})
}

func (u User) credential() credential.Credential {
	return credential.Credential{Hash: u.PasswordHash, Salt: u.PasswordSalt}
}

func (u *User) setCredential(c credential.Credential) {
	u.PasswordHash = c.Hash
	u.PasswordSalt = c.Salt
}

// SignUpInput carries the data needed to create an account.
type SignUpInput struct {
	Email    string
	Password string
	Profile  Profile
}
