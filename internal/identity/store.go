package identity

import (
	"context"
	"time"

	"github.com/studcloud/sso/internal/credential"
	"github.com/studcloud/sso/internal/token"
)

// Store persists user records. Implementations are the only arbiter of consistency:
// InsertUnique enforces email uniqueness and UpdateIf is a single atomic operation.
type Store interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	// InsertUnique stores a new record or returns ErrConflict when the email is taken.
	InsertUnique(ctx context.Context, user User) error
	// UpdateIf applies m to the record matching c and returns how many records matched.
	UpdateIf(ctx context.Context, c Condition, m Mutation) (int64, error)
	// Save writes the credential and profile of an existing record. Verification
	// state and the phone number are never written by Save; only UpdateIf changes them.
	Save(ctx context.Context, user User) error
}

// Condition selects a record for UpdateIf.
//
// With Token set, the pending token of Step must equal Token and be unexpired at Now.
// Without it, a verifiable Step must not be done yet.
type Condition struct {
	Email string
	Step  Step
	Token string
	Now   time.Time
}

func (c Condition) matches(u User) bool {
	if u.Email != c.Email {
		return false
	}
	state := u.Verification.State(c.Step)
	if c.Token != "" {
		return state.Pending != nil && state.Pending.Matches(c.Token, c.Now)
	}
	return !state.Done
}

// Mutation is the change UpdateIf applies to a matched record.
type Mutation struct {
	Step Step
	// Complete marks Step done and clears its pending token.
	Complete bool
	// Issue replaces the pending token of Step.
	Issue      *token.Token
	Credential *credential.Credential
	Phone      *string
}

func (m Mutation) empty() bool {
	return !m.Complete && m.Issue == nil && m.Credential == nil && m.Phone == nil
}

func (m Mutation) apply(u *User) {
	if m.Complete {
		if state := u.Verification.state(m.Step); state != nil {
			state.Done = true
			state.Pending = nil
		} else {
			u.Verification.Password = nil
		}
	}
	if m.Issue != nil {
		tok := *m.Issue
		if state := u.Verification.state(m.Step); state != nil {
			state.Pending = &tok
		} else {
			u.Verification.Password = &tok
		}
	}
	if m.Credential != nil {
		u.setCredential(*m.Credential)
	}
	if m.Phone != nil {
		u.Profile.Phone = *m.Phone
	}
}
