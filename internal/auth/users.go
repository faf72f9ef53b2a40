// Package auth holds login verification and the session cookie middleware.
// Users are operator-provisioned through configuration; there is no signup
// path and no users table.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/mailboxhq/mailbox/internal/config"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong
// password. Callers must not distinguish the two.
var ErrInvalidCredentials = errors.New("invalid username or password")

// UserStore verifies logins against the credential list loaded at startup.
type UserStore struct {
	users map[string]string // username -> bcrypt hash
}

// NewUserStore builds a UserStore from configured credentials.
func NewUserStore(credentials []config.UserCredential) *UserStore {
	users := make(map[string]string, len(credentials))
	for _, cred := range credentials {
		users[cred.Username] = cred.PasswordHash
	}
	return &UserStore{users: users}
}

// Authenticate checks a username and password pair.
func (s *UserStore) Authenticate(username, password string) error {
	hash, ok := s.users[username]
	if !ok {
		// Burn a comparison anyway so unknown usernames take as long as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"), []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Count returns the number of provisioned users.
func (s *UserStore) Count() int {
	return len(s.users)
}
