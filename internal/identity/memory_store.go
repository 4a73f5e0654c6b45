package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/studcloud/sso/internal/token"
)

type memoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
}

// NewMemoryStore builds an in-memory user store for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{users: make(map[string]User), byEmail: make(map[string]string)}
}

func (s *memoryStore) InsertUnique(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[user.Email]; exists {
		return ErrConflict
	}
	if _, exists := s.users[user.ID]; exists {
		return errors.New("user id exists")
	}
	s.users[user.ID] = clone(user)
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *memoryStore) FindByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return clone(s.users[id]), nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return clone(user), nil
}

func (s *memoryStore) UpdateIf(_ context.Context, c Condition, m Mutation) (int64, error) {
	if m.empty() {
		return 0, errors.New("empty mutation")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[c.Email]
	if !ok {
		return 0, nil
	}
	user := s.users[id]
	if !c.matches(user) {
		return 0, nil
	}
	user = clone(user)
	m.apply(&user)
	s.users[id] = user
	return 1, nil
}

func (s *memoryStore) Save(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	stored = clone(stored)
	stored.PasswordHash = append([]byte(nil), user.PasswordHash...)
	stored.PasswordSalt = append([]byte(nil), user.PasswordSalt...)
	phone := stored.Profile.Phone
	stored.Profile = user.Profile
	stored.Profile.Phone = phone
	s.users[user.ID] = stored
	return nil
}

func clone(u User) User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	u.PasswordSalt = append([]byte(nil), u.PasswordSalt...)
	u.Verification.Mail.Pending = cloneToken(u.Verification.Mail.Pending)
	u.Verification.Mobile.Pending = cloneToken(u.Verification.Mobile.Pending)
	u.Verification.Document.Pending = cloneToken(u.Verification.Document.Pending)
	u.Verification.Password = cloneToken(u.Verification.Password)
	return u
}

func cloneToken(t *token.Token) *token.Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
