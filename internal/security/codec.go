package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/adminkit/adminkit/internal/rbac"
	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/users"
)

// MinKeyBytes is the shortest decoded secret accepted for HMAC-SHA256.
const MinKeyBytes = 32

// ErrInvalidSecret reports a JWT secret that is not base64 or too short.
var ErrInvalidSecret = errors.New("security: invalid jwt secret")

// Config holds the signing secret and token lifetimes.
type Config struct {
	Secret           string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ResetPasswordTTL time.Duration
	Issuer           string
}

// Codec encodes and decodes HS256 tokens.
type Codec struct {
	key    []byte
	cfg    Config
	now    func() time.Time
	parser *jwt.Parser
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock replaces the wall clock used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// DecodeSecret base64-decodes a secret and checks its length.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSecret)
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.RawStdEncoding.DecodeString(secret)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: not base64: %v", ErrInvalidSecret, err)
	}
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidSecret, len(key), MinKeyBytes)
	}
	return key, nil
}

// NewCodec builds a Codec. It fails when the secret is unusable or a TTL is not positive.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	key, err := DecodeSecret(cfg.Secret)
	if err != nil {
		return nil, err
	}
	for name, ttl := range map[string]time.Duration{
		"access token ttl":   cfg.AccessTokenTTL,
		"refresh token ttl":  cfg.RefreshTokenTTL,
		"reset password ttl": cfg.ResetPasswordTTL,
	} {
		if ttl <= 0 {
			return nil, fmt.Errorf("security: %s must be positive", name)
		}
	}
	c := &Codec{key: key, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	c.parser = jwt.NewParser(parserOpts...)
	return c, nil
}

// Encode signs claims for subject with issued-at now and expiration now+ttl.
// A random jti is added when claims carry none.
func (c *Codec) Encode(subject string, claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.Subject = subject
	claims.Issuer = c.cfg.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("security: sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiration of a token. It fails with
// shared.ErrExpiredToken past expiration and shared.ErrMalformedToken otherwise.
func (c *Codec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", shared.ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedToken, err)
	}
	if !parsed.Valid {
		return nil, shared.ErrMalformedToken
	}
	return claims, nil
}

// IssueAccessToken embeds the user's identity and its current roles and
// permissions.
func (c *Codec) IssueAccessToken(u *users.User) (string, error) {
	claims := Claims{
		Kind:    KindAccess,
		UserID:  u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Surname: u.Surname,
	}
	for _, role := range u.Roles {
		claims.Roles = append(claims.Roles, shared.GrantedRole{ID: role.ID, Name: role.Name})
	}
	for _, perm := range rbac.FlattenPermissions(u.Roles) {
		claims.Permissions = append(claims.Permissions, shared.GrantedPermission{ID: perm.ID, Name: perm.Name})
	}
	return c.Encode(u.Username, claims, c.cfg.AccessTokenTTL)
}

// IssueRefreshToken issues a token carrying only the subject, a jti and its kind.
func (c *Codec) IssueRefreshToken(u *users.User) (string, error) {
	return c.Encode(u.Username, Claims{Kind: KindRefresh}, c.cfg.RefreshTokenTTL)
}

// IssueResetPasswordToken issues a token carrying only the subject, a jti and its kind.
func (c *Codec) IssueResetPasswordToken(u *users.User) (string, error) {
	return c.Encode(u.Username, Claims{Kind: KindResetPassword}, c.cfg.ResetPasswordTTL)
}

// ExtractUsername returns the subject of a valid token.
func (c *Codec) ExtractUsername(token string) (string, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", shared.ErrMalformedToken)
	}
	return claims.Subject, nil
}

// ExtractSubjectOfKind returns the subject of a valid token of the given kind.
// Any other kind is reported as shared.ErrMalformedToken.
func (c *Codec) ExtractSubjectOfKind(token string, kind Kind) (string, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return "", err
	}
	if claims.Kind != kind {
		return "", fmt.Errorf("%w: %q token where %q expected", shared.ErrMalformedToken, claims.Kind, kind)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", shared.ErrMalformedToken)
	}
	return claims.Subject, nil
}

// ExpirationOf returns the expiration instant claimed by a valid token.
func (c *Codec) ExpirationOf(token string) (time.Time, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}

// IsTokenValid reports whether the token is unexpired, correctly signed and
// issued to the given username. A renamed user invalidates older tokens.
func (c *Codec) IsTokenValid(token, username string) bool {
	subject, err := c.ExtractUsername(token)
	return err == nil && subject == username
}

// ReconstructPrincipal rebuilds the principal from the signed claims without
// touching the database.
func (c *Codec) ReconstructPrincipal(token string) (*shared.Principal, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", shared.ErrMalformedToken)
	}
	p := &shared.Principal{
		ID:          claims.UserID,
		Username:    claims.Subject,
		Email:       claims.Email,
		Name:        claims.Name,
		Surname:     claims.Surname,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		Token:       token,
	}
	seen := make(map[string]struct{}, len(claims.Permissions))
	for _, perm := range claims.Permissions {
		name := rbac.NormalizeAuthority(perm.Name)
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		p.Authorities = append(p.Authorities, name)
	}
	sort.Strings(p.Authorities)
	return p, nil
}
