package security

import (
	"log/slog"
	"net/http"

	"github.com/adminkit/adminkit/internal/platform/httpx"
	"github.com/adminkit/adminkit/internal/rbac"
	"github.com/adminkit/adminkit/internal/shared"
)

// Authorizer guards handlers with authority checks against the principal
// placed in the context by the Filter.
type Authorizer struct {
	Logger *slog.Logger
}

// RequireAny answers 401 without a principal and 403 when the principal holds
// none of the authorities. With no authorities it only requires authentication.
func (a Authorizer) RequireAny(authorities ...string) func(http.Handler) http.Handler {
	required := normalizeAuthorities(authorities)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, r, a.Logger, shared.ErrUnauthorized)
				return
			}
			if !principal.HasAnyAuthority(required...) {
				httpx.RespondError(w, r, a.Logger, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAll answers 403 unless the principal holds every authority.
func (a Authorizer) RequireAll(authorities ...string) func(http.Handler) http.Handler {
	required := normalizeAuthorities(authorities)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, r, a.Logger, shared.ErrUnauthorized)
				return
			}
			for _, authority := range required {
				if !principal.HasAuthority(authority) {
					httpx.RespondError(w, r, a.Logger, shared.ErrForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard adapts RequireAny to the handler constructors.
func (a Authorizer) Guard() httpx.Guard {
	return a.RequireAny
}

func normalizeAuthorities(authorities []string) []string {
	seen := make(map[string]struct{}, len(authorities))
	out := make([]string, 0, len(authorities))
	for _, authority := range authorities {
		name := rbac.NormalizeAuthority(authority)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
