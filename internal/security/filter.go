package security

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adminkit/adminkit/internal/platform/httpx"
	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/tokens"
	"github.com/adminkit/adminkit/internal/users"
)

// AuthPathPrefix is served without authentication.
const AuthPathPrefix = "/api/auth"

// UserDetailsLoader resolves the current account for a token subject.
type UserDetailsLoader interface {
	LoadUserByUsername(ctx context.Context, username string) (*users.User, error)
}

// AuthObserver counts authentication outcomes.
type AuthObserver interface {
	ObserveAuth(flow, outcome string)
}

// Filter authenticates bearer tokens. It never rejects a request itself:
// requests it cannot authenticate continue without a principal and the
// authority guard answers 401 or 403.
type Filter struct {
	codec    *Codec
	loader   UserDetailsLoader
	store    tokens.Store
	logger   *slog.Logger
	observer AuthObserver
}

// NewFilter constructs a Filter.
func NewFilter(codec *Codec, loader UserDetailsLoader, store tokens.Store, logger *slog.Logger, observer AuthObserver) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{codec: codec, loader: loader, store: store, logger: logger, observer: observer}
}

// isAuthPath matches AuthPathPrefix and the paths below it, but not
// siblings such as /api/authx.
func isAuthPath(path string) bool {
	return path == AuthPathPrefix || strings.HasPrefix(path, AuthPathPrefix+"/")
}

// Middleware populates the request context with the authenticated principal.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAuthPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := shared.PrincipalFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := httpx.BearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		principal, outcome := f.authenticate(r.Context(), token)
		f.observe(outcome)
		if principal != nil {
			r = r.WithContext(shared.ContextWithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

func (f *Filter) authenticate(ctx context.Context, token string) (*shared.Principal, string) {
	principal, err := f.codec.ReconstructPrincipal(token)
	if err != nil {
		if errors.Is(err, shared.ErrExpiredToken) {
			return nil, "expired"
		}
		return nil, "malformed"
	}
	user, err := f.loader.LoadUserByUsername(ctx, principal.Username)
	if err != nil {
		if !errors.Is(err, shared.ErrUserNotFound) {
			f.logger.Error("load user details", slog.String("username", principal.Username), slog.Any("error", err))
		}
		return nil, "unknown_user"
	}
	if !f.codec.IsTokenValid(token, user.Username) {
		return nil, "subject_mismatch"
	}
	if _, err := f.store.FindActiveByTokenAndType(ctx, token, tokens.TypeBearer); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			f.logger.Error("token store lookup", slog.Any("error", err))
		}
		return nil, "revoked"
	}
	return principal, "success"
}

func (f *Filter) observe(outcome string) {
	if f.observer != nil {
		f.observer.ObserveAuth("filter", outcome)
	}
}
