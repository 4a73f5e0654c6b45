package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength = 16
	keyLength  = 32

	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
)

// ErrEmptyPassword is returned when a credential is requested for an empty password.
var ErrEmptyPassword = errors.New("password must not be empty")

// Credential is the persisted form of a password: a digest and the salt it was derived with.
type Credential struct {
	Hash []byte
	Salt []byte
}

// Hash derives the argon2id digest of password under salt. The same inputs always yield the same digest.
// An empty salt is a caller bug and panics.
func Hash(password string, salt []byte) []byte {
	if len(salt) == 0 {
		panic("credential: hash called without salt")
	}
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyLength)
}

// New generates a fresh random salt and returns the credential for password.
func New(password string) (Credential, error) {
	if password == "" {
		return Credential{}, ErrEmptyPassword
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("generate salt: %w", err)
	}
	return Credential{Hash: Hash(password, salt), Salt: salt}, nil
}

// Verify reports whether supplied matches the stored credential.
// The digest comparison runs in constant time.
func Verify(c Credential, supplied string) bool {
	if len(c.Salt) == 0 || len(c.Hash) == 0 {
		panic("credential: verify called on incomplete credential")
	}
	return subtle.ConstantTimeCompare(c.Hash, Hash(supplied, c.Salt)) == 1
}

var dummy = Credential{
	Hash: make([]byte, keyLength),
	Salt: []byte("credential-dummy"),
}

// Dummy returns a credential that matches no password. Checking against it costs the same
// as a real verification, so callers can hide whether an account exists.
func Dummy() Credential {
	return dummy
}
