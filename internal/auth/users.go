package auth

import (
	"crypto/subtle"
	"errors"

	"support-console/internal/config"
)

var ErrBadCredentials = errors.New("auth: bad credentials")

// UserStore resolves console credentials to a role. Accounts come from
// configuration; there is no user table.
type UserStore struct {
	admin  account
	viewer account
}

type account struct {
	username string
	password string
}

func NewUserStore(cfg config.AuthConfig) *UserStore {
	return &UserStore{
		admin:  account{username: cfg.AdminUsername, password: cfg.AdminPassword},
		viewer: account{username: cfg.ViewerUsername, password: cfg.ViewerPassword},
	}
}

// Authenticate returns the role for a credential pair, in constant time
// per candidate account.
func (s *UserStore) Authenticate(username, password string) (string, error) {
	if match(s.admin, username, password) {
		return RoleAdmin, nil
	}
	if match(s.viewer, username, password) {
		return RoleViewer, nil
	}
	return "", ErrBadCredentials
}

// RoleOf resolves a known username to its role. Used on token refresh,
// where the refresh token carries no role claim.
func (s *UserStore) RoleOf(username string) (string, bool) {
	if s.admin.username != "" && s.admin.username == username {
		return RoleAdmin, true
	}
	if s.viewer.username != "" && s.viewer.username == username {
		return RoleViewer, true
	}
	return "", false
}

func match(a account, username, password string) bool {
	if a.username == "" || a.password == "" {
		return false
	}
	u := subtle.ConstantTimeCompare([]byte(a.username), []byte(username))
	p := subtle.ConstantTimeCompare([]byte(a.password), []byte(password))
	return u == 1 && p == 1
}
