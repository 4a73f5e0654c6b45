package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/studcloud/sso/internal/credential"
	"github.com/studcloud/sso/internal/token"
)

var queryNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestUpdateIfQueryConfirm(t *testing.T) {
	query, args := updateIfQuery(
		Condition{Email: "a@b.com", Step: StepMobile, Token: "tok", Now: queryNow},
		Mutation{Step: StepMobile, Complete: true},
	)
	require.Equal(t, "UPDATE users SET mobile_done = TRUE, mobile_token = NULL, mobile_token_expires_at = NULL "+
		"WHERE email = $1 AND mobile_token = $2 AND mobile_token_expires_at > $3", query)
	require.Equal(t, []any{"a@b.com", "tok", queryNow}, args)
}

func TestUpdateIfQueryIssueGuardsCompletedStep(t *testing.T) {
	tok := token.Token{Value: "new", ExpiresAt: queryNow.Add(time.Hour)}
	phone := "+79161234567"
	query, args := updateIfQuery(
		Condition{Email: "a@b.com", Step: StepMobile},
		Mutation{Step: StepMobile, Issue: &tok, Phone: &phone},
	)
	require.Equal(t, "UPDATE users SET mobile_token = $2, mobile_token_expires_at = $3, phone = $4 "+
		"WHERE email = $1 AND NOT mobile_done", query)
	require.Equal(t, []any{"a@b.com", "new", tok.ExpiresAt, phone}, args)
}

func TestUpdateIfQueryPasswordReset(t *testing.T) {
	cred := credential.Credential{Hash: []byte("h"), Salt: []byte("s")}
	query, args := updateIfQuery(
		Condition{Email: "a@b.com", Step: StepPassword, Token: "key", Now: queryNow},
		Mutation{Step: StepPassword, Complete: true, Credential: &cred},
	)
	require.Equal(t, "UPDATE users SET password_token = NULL, password_token_expires_at = NULL, "+
		"password_hash = $4, password_salt = $5 "+
		"WHERE email = $1 AND password_token = $2 AND password_token_expires_at > $3", query)
	require.Len(t, args, 5)
}

func TestMongoFilterAndUpdate(t *testing.T) {
	filter := mongoFilter(Condition{Email: "a@b.com", Step: StepMail, Token: "tok", Now: queryNow})
	require.Equal(t, bson.M{
		"email":                                "a@b.com",
		"verification.mail.pending.value":      "tok",
		"verification.mail.pending.expires_at": bson.M{"$gt": queryNow},
	}, filter)

	update := mongoUpdate(Mutation{Step: StepMail, Complete: true})
	require.Equal(t, bson.M{
		"$set":   bson.M{"verification.mail.done": true},
		"$unset": bson.M{"verification.mail.pending": ""},
	}, update)

	filter = mongoFilter(Condition{Email: "a@b.com", Step: StepDocument})
	require.Equal(t, bson.M{"email": "a@b.com", "verification.document.done": bson.M{"$ne": true}}, filter)

	filter = mongoFilter(Condition{Email: "a@b.com", Step: StepPassword})
	require.Equal(t, bson.M{"email": "a@b.com"}, filter)
}

func TestMongoDocumentRoundTrip(t *testing.T) {
	pending := token.Token{Value: "tok", ExpiresAt: queryNow.Add(time.Hour)}
	user := User{
		ID:           "id-1",
		Email:        "a@b.com",
		PasswordHash: []byte("h"),
		PasswordSalt: []byte("s"),
		Profile:      Profile{Name: "Anna", Phone: "+79161234567"},
		Verification: Verification{
			Mail:   StepState{Done: true},
			Mobile: StepState{Pending: &pending},
		},
		CreatedAt: queryNow,
	}

	raw, err := bson.Marshal(toMongo(user))
	require.NoError(t, err)
	var doc mongoUser
	require.NoError(t, bson.Unmarshal(raw, &doc))

	got := fromMongo(doc)
	require.Equal(t, user.Email, got.Email)
	require.Equal(t, user.Profile, got.Profile)
	require.True(t, got.Verification.Mail.Done)
	require.Nil(t, got.Verification.Mail.Pending)
	require.Equal(t, "tok", got.Verification.Mobile.Pending.Value)
	require.True(t, pending.ExpiresAt.Equal(got.Verification.Mobile.Pending.ExpiresAt))
	require.Nil(t, got.Verification.Password)
}
