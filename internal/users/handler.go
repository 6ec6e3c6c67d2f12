package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adminkit/adminkit/internal/platform/httpx"
	"github.com/adminkit/adminkit/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   httpx.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard httpx.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers user routes under /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/user", func(r chi.Router) {
		r.With(h.guard()).Get("/me", h.me)
		r.With(h.guard(shared.PermUserCreate)).Post("/", h.createUser)
		r.With(h.guard(shared.PermUserRead)).Post("/list", h.listUsers)
		r.With(h.guard(shared.PermUserChangePassword)).Put("/change-password", h.changePassword)
		r.With(h.guard(shared.PermUserRead)).Get("/{userId}", h.getUser)
		r.With(h.guard(shared.PermUserUpdate)).Put("/{userId}", h.updateUser)
		r.With(h.guard(shared.PermUserDelete)).Delete("/{userId}", h.deleteUser)
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, shared.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, principal)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

// listUsers serves POST /user/list?page=&size=&sort=&direction= with an
// optional ListFilter body. Pages are 1-based.
func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.QueryInt(r, "page", 1)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	size, err := httpx.QueryInt(r, "size", shared.DefaultPerPage)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var filter ListFilter
	if err := httpx.DecodeOptionalAndValidate(r, &filter); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	result, err := h.service.ListUsers(r.Context(), ListQuery{
		Filter: filter,
		Page: shared.PageRequest{
			Page:      page,
			PerPage:   size,
			Sort:      r.URL.Query().Get("sort"),
			Direction: shared.ParseSortDirection(r.URL.Query().Get("direction")),
		},
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "userId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "userId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var in UpdateInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, shared.ErrUnauthorized)
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.OK(w)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "userId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.OK(w)
}
