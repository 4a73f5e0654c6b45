package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/studcloud/sso/internal/config"
	"github.com/studcloud/sso/internal/identity"
	"github.com/studcloud/sso/internal/logging"
	"github.com/studcloud/sso/internal/notification"
	"github.com/studcloud/sso/internal/routes"
)

const reviewer = "review@studcloud.test"

type inbox struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (i *inbox) Send(_ context.Context, m notification.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.messages = append(i.messages, m)
	return nil
}

// token returns the latest token of kind delivered to destination.
func (i *inbox) token(destination, kind string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	for n := len(i.messages) - 1; n >= 0; n-- {
		if m := i.messages[n]; m.Kind == kind && m.Destination == destination {
			return m.Body
		}
	}
	return ""
}

type harness struct {
	t     *testing.T
	srv   *Server
	inbox *inbox
}

func newHarness(t *testing.T) harness {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	box := &inbox{}
	cfg := config.Config{
		AppName:             "sso-test",
		StoreBackend:        config.BackendMemory,
		SessionSecret:       "0123456789abcdef0123",
		SessionTTL:          time.Hour,
		SessionIssuer:       "sso",
		MailTokenTTL:        time.Hour,
		MobileTokenTTL:      time.Minute,
		DocumentTokenTTL:    time.Hour,
		PasswordTokenTTL:    time.Hour,
		StoreRetryAttempts:  2,
		StoreRetryBaseDelay: time.Millisecond,
		StoreRetryMaxDelay:  time.Millisecond,
		StoreTimeout:        time.Second,
		SignInPerMinute:     20,
		IdempotencyTTL:      time.Minute,
		PhoneRegion:         "RU",
		DocumentReviewer:    reviewer,
	}
	srv, err := New(routes.Deps{
		Cfg:      cfg,
		Store:    identity.NewMemoryStore(),
		Cache:    cache,
		Notifier: box,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	return harness{t: t, srv: srv, inbox: box}
}

func (h harness) call(method, path, body, session string, headers ...string) (int, map[string]any) {
	h.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.srv.App().Test(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(h.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestVerificationJourney(t *testing.T) {
	h := newHarness(t)

	code, body := h.call(http.MethodPost, "/api/v1/identity/signup",
		`{"email":"a@b.com","password":"correct horse","name":"Anna","university":"MSU"}`, "",
		"Idempotency-Key", "signup-1")
	require.Equal(t, http.StatusCreated, code, body)
	require.EqualValues(t, 1, body["level"])
	require.NotContains(t, body, "password_hash")

	code, body = h.call(http.MethodPost, "/api/v1/identity/signup",
		`{"email":"a@b.com","password":"correct horse"}`, "", "Idempotency-Key", "signup-2")
	require.Equal(t, http.StatusConflict, code, body)

	code, body = h.call(http.MethodPost, "/api/v1/auth/signin", `{"email":"a@b.com","password":"correct horse"}`, "")
	require.Equal(t, http.StatusOK, code, body)
	session, _ := body["access_token"].(string)
	require.NotEmpty(t, session)

	code, body = h.call(http.MethodGet, "/api/v1/me", "", session)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "a@b.com", body["email"])

	code, body = h.call(http.MethodPost, "/api/v1/me/verify/mobile", `{"phone":"+79161234567"}`, session)
	require.Equal(t, 405, code)
	require.Equal(t, "requires email confirmation", body["message"])

	code, _ = h.call(http.MethodPost, "/api/v1/identity/confirm/mail",
		`{"email":"a@b.com","token":"`+h.inbox.token("a@b.com", notification.KindMailConfirmation)+`"}`, "")
	require.Equal(t, http.StatusOK, code)

	code, _ = h.call(http.MethodPost, "/api/v1/me/verify/mobile", `{"phone":"+79161234567"}`, session)
	require.Equal(t, http.StatusAccepted, code)
	code, _ = h.call(http.MethodPost, "/api/v1/identity/confirm/mobile",
		`{"email":"a@b.com","token":"`+h.inbox.token("+79161234567", notification.KindMobileConfirmation)+`"}`, "")
	require.Equal(t, http.StatusOK, code)

	code, body = h.call(http.MethodPost, "/api/v1/me/verify/document", "", session)
	require.Equal(t, http.StatusAccepted, code)
	require.NotContains(t, body, "token")
	require.Empty(t, h.inbox.token("a@b.com", notification.KindDocumentConfirmation))
	review := h.inbox.token(reviewer, notification.KindDocumentConfirmation)
	require.NotEmpty(t, review)

	code, _ = h.call(http.MethodPost, "/api/v1/identity/confirm/document",
		`{"email":"a@b.com","token":"`+review+`"}`, "")
	require.Equal(t, http.StatusOK, code)

	code, body = h.call(http.MethodGet, "/api/v1/me", "", session)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 4, body["level"])
	require.Equal(t, "+79161234567", body["profile"].(map[string]any)["phone"])
}

func TestErrorResponses(t *testing.T) {
	h := newHarness(t)

	code, body := h.call(http.MethodGet, "/api/v1/me", "", "")
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "requires authentication", body["message"])

	code, body = h.call(http.MethodPost, "/api/v1/auth/signin", `{"email":"nobody@b.com","password":"x"}`, "")
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "invalid email or password", body["message"])

	code, _ = h.call(http.MethodPost, "/api/v1/identity/signup", `{"email":"not-an-email","password":"correct horse"}`, "",
		"Idempotency-Key", "bad-email")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = h.call(http.MethodPost, "/api/v1/identity/confirm/password", `{"email":"a@b.com","token":"x"}`, "")
	require.Equal(t, http.StatusBadRequest, code)

	code, body = h.call(http.MethodPost, "/api/v1/identity/confirm/mail", `{"email":"a@b.com","token":"x"}`, "")
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "confirmation failed", body["message"])

	code, _ = h.call(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, code)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)

	code, _ := h.call(http.MethodPost, "/api/v1/identity/signup", `{"email":"r@b.com","password":"correct horse"}`, "",
		"Idempotency-Key", "signup-r")
	require.Equal(t, http.StatusCreated, code)

	code, _ = h.call(http.MethodPost, "/api/v1/identity/password/reset", `{"email":"unknown@b.com"}`, "")
	require.Equal(t, http.StatusAccepted, code)
	code, _ = h.call(http.MethodPost, "/api/v1/identity/password/reset", `{"email":"r@b.com"}`, "")
	require.Equal(t, http.StatusAccepted, code)

	key := h.inbox.token("r@b.com", notification.KindPasswordReset)
	code, _ = h.call(http.MethodPost, "/api/v1/identity/password/reset/confirm",
		`{"email":"r@b.com","token":"`+key+`","password":"brand new pass"}`, "")
	require.Equal(t, http.StatusOK, code)

	code, _ = h.call(http.MethodPost, "/api/v1/auth/signin", `{"email":"r@b.com","password":"brand new pass"}`, "")
	require.Equal(t, http.StatusOK, code)
}
