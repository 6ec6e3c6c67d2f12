package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/adminkit/adminkit/internal/auth"
	"github.com/adminkit/adminkit/internal/observability"
	"github.com/adminkit/adminkit/internal/platform/httpx"
	"github.com/adminkit/adminkit/internal/rbac"
	"github.com/adminkit/adminkit/internal/security"
	"github.com/adminkit/adminkit/internal/users"
	"github.com/adminkit/adminkit/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Filter       *security.Filter
	AuthHandler  *auth.Handler
	UsersHandler *users.Handler
	RBACHandler  *rbac.Handler
	JobHandler   *jobs.Handler
	Metrics      *observability.Metrics
	// Ready reports whether backing services answer; nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter constructs the chi.Router with API defaults. Every route under
// /api except /api/auth runs behind the authentication filter.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Ready(ctx); err != nil {
				params.Logger.Warn("readiness check", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.Filter != nil {
			r.Use(params.Filter.Middleware)
		}
		r.Route("/auth", func(r chi.Router) {
			r.Use(AuthRateLimit())
			params.AuthHandler.MountRoutes(r)
		})
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		if params.RBACHandler != nil {
			params.RBACHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "no route for "+r.URL.Path, r.URL.Path)
	})

	return r
}
