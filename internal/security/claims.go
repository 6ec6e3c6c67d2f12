// Package security issues and validates signed JWTs and turns them into
// request principals.
package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adminkit/adminkit/internal/shared"
)

// Token timestamps are written with millisecond precision.
func init() {
	jwt.TimePrecision = time.Millisecond
}

// Kind tells the three token families apart.
type Kind string

const (
	KindAccess        Kind = "access"
	KindRefresh       Kind = "refresh"
	KindResetPassword Kind = "reset_password"
)

// Claims is the typed payload of every token the codec signs. Refresh and
// reset-password tokens only carry the registered claims and their kind.
type Claims struct {
	jwt.RegisteredClaims
	Kind        Kind                       `json:"typ,omitempty"`
	UserID      int64                      `json:"id,omitempty"`
	Email       string                     `json:"email,omitempty"`
	Name        string                     `json:"name,omitempty"`
	Surname     string                     `json:"surname,omitempty"`
	Roles       []shared.GrantedRole       `json:"roles,omitempty"`
	Permissions []shared.GrantedPermission `json:"permissions,omitempty"`
}
