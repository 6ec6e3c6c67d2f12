package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/users"
)

// dummyHash is compared against when the username is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("adminkit-dummy-password"), bcrypt.DefaultCost)

// BcryptCredentials checks passwords against the bcrypt hashes of the users table.
type BcryptCredentials struct {
	users users.Repository
}

// NewBcryptCredentials constructs a BcryptCredentials checker.
func NewBcryptCredentials(repo users.Repository) *BcryptCredentials {
	return &BcryptCredentials{users: repo}
}

// Authenticate validates username/password credentials. Disabled accounts fail
// the same way as a wrong password.
func (c *BcryptCredentials) Authenticate(ctx context.Context, username, password string) (*users.User, error) {
	user, err := c.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !users.PasswordMatches(user.PasswordHash, password) {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.Enabled {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}
