package security

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/adminkit/internal/rbac"
	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/users"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestCodec(t *testing.T, clk *clock) *Codec {
	t.Helper()
	codec, err := NewCodec(Config{
		Secret:           testSecret,
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  24 * time.Hour,
		ResetPasswordTTL: 30 * time.Minute,
	}, WithClock(clk.Now))
	require.NoError(t, err)
	return codec
}

func adminUser() *users.User {
	return &users.User{
		ID:       1,
		Username: "admin",
		Email:    "admin@example.com",
		Name:     "Ada",
		Surname:  "Admin",
		Enabled:  true,
		Roles: []rbac.Role{
			{ID: 1, Name: "ADMIN", Permissions: []rbac.Permission{{ID: 1, Name: "user_read"}, {ID: 2, Name: "USER_UPDATE"}}},
			{ID: 2, Name: "AUDITOR", Permissions: []rbac.Permission{{ID: 1, Name: "user_read"}}},
		},
	}
}

func TestNewCodecRejectsBadSecrets(t *testing.T) {
	base := Config{AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Minute, ResetPasswordTTL: time.Minute}
	for name, secret := range map[string]string{
		"empty":      "",
		"not-base64": "%%%not-base64%%%",
		"too-short":  base64.StdEncoding.EncodeToString([]byte("short")),
	} {
		t.Run(name, func(t *testing.T) {
			cfg := base
			cfg.Secret = secret
			_, err := NewCodec(cfg)
			assert.ErrorIs(t, err, ErrInvalidSecret)
		})
	}

	cfg := base
	cfg.Secret = testSecret
	cfg.RefreshTokenTTL = 0
	_, err := NewCodec(cfg)
	assert.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, clk)
	user := adminUser()

	token, err := codec.IssueAccessToken(user)
	require.NoError(t, err)

	principal, err := codec.ReconstructPrincipal(token)
	require.NoError(t, err)
	assert.Equal(t, user.Username, principal.Username)
	assert.Equal(t, user.ID, principal.ID)
	assert.Equal(t, user.Email, principal.Email)
	assert.Equal(t, user.Authorities(), principal.Authorities)
	assert.Equal(t, []shared.GrantedRole{{ID: 1, Name: "ADMIN"}, {ID: 2, Name: "AUDITOR"}}, principal.Roles)
	assert.Len(t, principal.Permissions, 2)
	assert.Equal(t, token, principal.Token)

	exp, err := codec.ExpirationOf(token)
	require.NoError(t, err)
	assert.True(t, clk.now.Add(15*time.Minute).Equal(exp), "expiration %s", exp)
}

func TestPrincipalIsFrozenAtIssuance(t *testing.T) {
	clk := &clock{now: time.Now()}
	codec := newTestCodec(t, clk)
	user := adminUser()
	token, err := codec.IssueAccessToken(user)
	require.NoError(t, err)

	user.Roles = nil
	principal, err := codec.ReconstructPrincipal(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"USER_READ", "USER_UPDATE"}, principal.Authorities)
}

func TestRefreshAndResetTokensCarryMinimalClaims(t *testing.T) {
	clk := &clock{now: time.Now()}
	codec := newTestCodec(t, clk)

	for kind, issue := range map[Kind]func(*users.User) (string, error){
		KindRefresh:       codec.IssueRefreshToken,
		KindResetPassword: codec.IssueResetPasswordToken,
	} {
		token, err := issue(adminUser())
		require.NoError(t, err)
		claims, err := codec.Decode(token)
		require.NoError(t, err)
		assert.Equal(t, kind, claims.Kind)
		assert.Equal(t, "admin", claims.Subject)
		assert.NotEmpty(t, claims.ID)
		assert.Zero(t, claims.UserID)
		assert.Empty(t, claims.Permissions)
	}
}

func TestTokensAreUniqueForIdenticalClaims(t *testing.T) {
	clk := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, clk)
	a, err := codec.IssueAccessToken(adminUser())
	require.NoError(t, err)
	b, err := codec.IssueAccessToken(adminUser())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestExpiryMonotonicity(t *testing.T) {
	issued := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := &clock{now: issued}
	codec := newTestCodec(t, clk)
	token, err := codec.IssueAccessToken(adminUser())
	require.NoError(t, err)
	expiry := issued.Add(15 * time.Minute)

	for _, offset := range []time.Duration{0, time.Minute, 14 * time.Minute, 15*time.Minute - time.Millisecond} {
		clk.now = issued.Add(offset)
		_, err := codec.Decode(token)
		assert.NoError(t, err, "offset %s", offset)
	}
	for _, at := range []time.Time{expiry, expiry.Add(time.Millisecond), expiry.Add(time.Hour)} {
		clk.now = at
		_, err := codec.Decode(token)
		assert.ErrorIs(t, err, shared.ErrExpiredToken, "at %s", at)
		assert.NotErrorIs(t, err, shared.ErrMalformedToken)
	}
}

func TestDecodeMalformed(t *testing.T) {
	clk := &clock{now: time.Now()}
	codec := newTestCodec(t, clk)
	token, err := codec.IssueAccessToken(adminUser())
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	if strings.HasSuffix(token, "xx") {
		tampered = token[:len(token)-2] + "yy"
	}

	other, err := NewCodec(Config{
		Secret:           base64.StdEncoding.EncodeToString([]byte("ffffffffffffffffffffffffffffffff")),
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Minute,
		ResetPasswordTTL: time.Minute,
	})
	require.NoError(t, err)
	foreign, err := other.IssueAccessToken(adminUser())
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, input := range map[string]string{
		"garbage":  "invalid-refresh-token",
		"empty":    "",
		"tampered": tampered,
		"foreign":  foreign,
		"alg-none": none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decode(input)
			assert.ErrorIs(t, err, shared.ErrMalformedToken)
		})
	}
}

func TestIsTokenValidChecksSubject(t *testing.T) {
	clk := &clock{now: time.Now()}
	codec := newTestCodec(t, clk)
	token, err := codec.IssueRefreshToken(adminUser())
	require.NoError(t, err)

	assert.True(t, codec.IsTokenValid(token, "admin"))
	assert.False(t, codec.IsTokenValid(token, "renamed"))

	clk.now = clk.now.Add(25 * time.Hour)
	assert.False(t, codec.IsTokenValid(token, "admin"))
}

func TestExtractSubjectOfKind(t *testing.T) {
	clk := &clock{now: time.Now()}
	codec := newTestCodec(t, clk)
	refresh, err := codec.IssueRefreshToken(adminUser())
	require.NoError(t, err)
	access, err := codec.IssueAccessToken(adminUser())
	require.NoError(t, err)
	reset, err := codec.IssueResetPasswordToken(adminUser())
	require.NoError(t, err)

	subject, err := codec.ExtractSubjectOfKind(refresh, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)

	for name, token := range map[string]string{"access": access, "reset": reset} {
		_, err := codec.ExtractSubjectOfKind(token, KindRefresh)
		assert.ErrorIs(t, err, shared.ErrMalformedToken, name)
	}
}

func TestExpirationKeepsMilliseconds(t *testing.T) {
	issued := time.Date(2024, 3, 1, 10, 0, 0, int(750*time.Millisecond), time.UTC)
	clk := &clock{now: issued}
	codec := newTestCodec(t, clk)
	token, err := codec.IssueAccessToken(adminUser())
	require.NoError(t, err)

	exp, err := codec.ExpirationOf(token)
	require.NoError(t, err)
	assert.True(t, issued.Add(15*time.Minute).Equal(exp), "expiration %s", exp)

	clk.now = issued.Add(15*time.Minute - time.Millisecond)
	_, err = codec.Decode(token)
	assert.NoError(t, err)
	clk.now = issued.Add(15 * time.Minute)
	_, err = codec.Decode(token)
	assert.ErrorIs(t, err, shared.ErrExpiredToken)
}
