// Package tokens keeps the durable record of every issued bearer and
// reset-password token. It is the source of truth for revocation.
package tokens

import "time"

// Type distinguishes bearer access tokens from reset-password tokens.
type Type string

const (
	TypeBearer        Type = "BEARER"
	TypeResetPassword Type = "RESET_PASSWORD"
)

// Valid reports whether t is a known token type.
func (t Type) Valid() bool {
	return t == TypeBearer || t == TypeResetPassword
}

// Token is one issued token row.
type Token struct {
	ID         int64
	Token      string
	Type       Type
	Revoked    bool
	Expiration time.Time
	UserID     int64
}

// Active reports whether the token has not been revoked.
func (t *Token) Active() bool {
	return t != nil && !t.Revoked
}

// PurgeGrace is kept between a token's expiration and its physical deletion.
const PurgeGrace = 24 * time.Hour

// PurgeCutoff returns the expiration instant before which tokens may be deleted.
func PurgeCutoff(now time.Time) time.Time {
	return now.Add(-PurgeGrace)
}
