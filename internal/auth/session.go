package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidSession is returned for session tokens that are malformed, forged or expired.
var ErrInvalidSession = errors.New("invalid session")

// Claims identify the session holder. The trust level is not carried; it
// is recomputed from the user record on every request.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// Session is a verified session token. ID is the token's jti and names the session
// itself; UserID names its holder.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// Sessions mints and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewSessions builds a session signer.
func NewSessions(secret string, ttl time.Duration, issuer string) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// WithClock overrides the time source.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue signs a session token for userID.
func (s *Sessions) Issue(userID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies a session token.
func (s *Sessions) Parse(tokenString string) (Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.UserID == "" || claims.ID == "" {
		return Session{}, ErrInvalidSession
	}
	return Session{ID: claims.ID, UserID: claims.UserID, ExpiresAt: claims.ExpiresAt.Time}, nil
}
