package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// byteLength gives 256 bits of entropy per token.
const byteLength = 32

// Token is a one-shot verification secret with an expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token is set and not yet expired at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// Matches reports whether supplied equals the token value and the token is still valid.
func (t Token) Matches(supplied string, now time.Time) bool {
	if supplied == "" || !t.Valid(now) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(t.Value), []byte(supplied)) == 1
}

// Generator mints tokens that live for a fixed TTL.
type Generator struct {
	ttl time.Duration
	now func() time.Time
}

// NewGenerator builds a generator whose tokens expire ttl after creation.
func NewGenerator(ttl time.Duration) *Generator {
	return &Generator{ttl: ttl, now: time.Now}
}

// WithClock overrides the time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	if now != nil {
		g.now = now
	}
	return g
}

// TTL returns the validity window of minted tokens.
func (g *Generator) TTL() time.Duration {
	return g.ttl
}

// New returns a fresh unpredictable token.
func (g *Generator) New() (Token, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, fmt.Errorf("read random: %w", err)
	}
	return Token{
		Value:     hex.EncodeToString(buf),
		ExpiresAt: g.now().Add(g.ttl).UTC(),
	}, nil
}
