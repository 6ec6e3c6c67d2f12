package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adminkit/adminkit/internal/platform/httpx"
	"github.com/adminkit/adminkit/internal/shared"
)

// Handler exposes read access to roles and permissions plus role permission updates.
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

// MountRoutes registers role and permission routes under /api.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard(shared.PermRoleRead)).Get("/role", h.listRoles)
	r.With(h.guard(shared.PermRoleUpdate)).Put("/role/{roleId}/permissions", h.setRolePermissions)
	r.With(h.guard(shared.PermPermissionRead)).Get("/permission", h.listPermissions)
	r.With(h.guard(shared.PermPermissionRead)).Get("/permission/role/{roleId}", h.listRolePermissions)
}

type setPermissionsRequest struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"dive,gt=0"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nonNil(roles))
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nonNil(perms))
}

func (h *Handler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := httpx.IDParam(r, "roleId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	perms, err := h.service.ListPermissionsByRole(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nonNil(perms))
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := httpx.IDParam(r, "roleId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req setPermissionsRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	perms, err := h.service.SetRolePermissions(r.Context(), roleID, req.PermissionIDs)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nonNil(perms))
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
