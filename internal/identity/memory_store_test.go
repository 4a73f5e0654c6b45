package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studcloud/sso/internal/token"
)

func seedUser(t *testing.T, store Store, email string, pending *token.Token) User {
	t.Helper()
	user := User{
		ID:           "id-" + email,
		Email:        email,
		PasswordHash: []byte("hash"),
		PasswordSalt: []byte("salt"),
		Verification: Verification{Mail: StepState{Pending: pending}},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.InsertUnique(context.Background(), user))
	return user
}

func TestMemoryStoreInsertUnique(t *testing.T) {
	store := NewMemoryStore()
	seedUser(t, store, "a@b.com", nil)

	err := store.InsertUnique(context.Background(), User{ID: "other", Email: "a@b.com"})
	require.ErrorIs(t, err, ErrConflict)

	_, err = store.FindByEmail(context.Background(), "missing@b.com")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	tok := token.Token{Value: "abc", ExpiresAt: time.Now().Add(time.Hour)}
	seedUser(t, store, "a@b.com", &tok)

	got, err := store.FindByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	got.Verification.Mail.Pending.Value = "tampered"
	got.PasswordHash[0] = 'X'

	again, err := store.FindByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.Equal(t, "abc", again.Verification.Mail.Pending.Value)
	require.Equal(t, []byte("hash"), again.PasswordHash)
}

func TestMemoryStoreUpdateIfWithToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	tok := token.Token{Value: "abc", ExpiresAt: now.Add(time.Hour)}
	seedUser(t, store, "a@b.com", &tok)

	n, err := store.UpdateIf(ctx, Condition{Email: "a@b.com", Step: StepMail, Token: "wrong", Now: now}, Mutation{Step: StepMail, Complete: true})
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = store.UpdateIf(ctx, Condition{Email: "a@b.com", Step: StepMail, Token: "abc", Now: now.Add(2 * time.Hour)}, Mutation{Step: StepMail, Complete: true})
	require.NoError(t, err)
	require.Zero(t, n, "expired token must not match")

	n, err = store.UpdateIf(ctx, Condition{Email: "a@b.com", Step: StepMail, Token: "abc", Now: now}, Mutation{Step: StepMail, Complete: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	user, err := store.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.True(t, user.Verification.Mail.Done)
	require.Nil(t, user.Verification.Mail.Pending)

	n, err = store.UpdateIf(ctx, Condition{Email: "a@b.com", Step: StepMail, Token: "abc", Now: now}, Mutation{Step: StepMail, Complete: true})
	require.NoError(t, err)
	require.Zero(t, n, "consumed token must not match twice")
}

func TestMemoryStoreUpdateIfWithoutToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedUser(t, store, "a@b.com", nil)
	tok := token.Token{Value: "mobile", ExpiresAt: time.Now().Add(time.Hour)}
	phone := "+79161234567"

	n, err := store.UpdateIf(ctx, Condition{Email: "a@b.com", Step: StepMobile}, Mutation{Step: StepMobile, Issue: &tok, Phone: &phone})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	user, err := store.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.Equal(t, "mobile", user.Verification.Mobile.Pending.Value)
	require.Equal(t, phone, user.Profile.Phone)

	n, err = store.UpdateIf(ctx, Condition{Email: "a@b.com", Step: StepMobile}, Mutation{Step: StepMobile, Complete: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = store.UpdateIf(ctx, Condition{Email: "a@b.com", Step: StepMobile}, Mutation{Step: StepMobile, Issue: &tok})
	require.NoError(t, err)
	require.Zero(t, n, "completed step must not accept a new token")

	_, err = store.UpdateIf(ctx, Condition{Email: "a@b.com", Step: StepMobile}, Mutation{})
	require.Error(t, err)
}

func TestMemoryStoreSaveLeavesVerificationAlone(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tok := token.Token{Value: "abc", ExpiresAt: time.Now().Add(time.Hour)}
	seedUser(t, store, "a@b.com", &tok)

	stale, err := store.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)

	n, err := store.UpdateIf(ctx, Condition{Email: "a@b.com", Step: StepMail, Token: "abc", Now: time.Now()}, Mutation{Step: StepMail, Complete: true})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	stale.Profile.Name = "Ivan"
	stale.Profile.Phone = "+70000000000"
	require.NoError(t, store.Save(ctx, stale))

	user, err := store.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.Equal(t, "Ivan", user.Profile.Name)
	require.Empty(t, user.Profile.Phone)
	require.True(t, user.Verification.Mail.Done)
	require.Nil(t, user.Verification.Mail.Pending)

	require.ErrorIs(t, store.Save(ctx, User{ID: "missing"}), ErrNotFound)
}
