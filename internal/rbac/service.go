package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/tokens"
)

// Service orchestrates RBAC operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service backed by the provided repository.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ListRoles returns all roles with their permissions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// ListPermissionsByRole returns the permissions granted to a role.
func (s *Service) ListPermissionsByRole(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.repo.ListPermissionsByRole(ctx, roleID)
}

// SetRolePermissions replaces the permission set of a role. Access tokens of
// every user holding the role embed the old authorities, so they are revoked
// in the same transaction.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) ([]Permission, error) {
	ids := uniqueIDs(permissionIDs)
	var revoked int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.RoleExists(ctx, roleID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("rbac: role %d: %w", roleID, shared.ErrNotFound)
		}
		if len(ids) > 0 {
			n, err := tx.CountPermissions(ctx, ids)
			if err != nil {
				return err
			}
			if n != len(ids) {
				return fmt.Errorf("%w: unknown permission id", shared.ErrBadRequest)
			}
		}
		if err := tx.ReplaceRolePermissions(ctx, roleID, ids); err != nil {
			return err
		}
		revoked, err = tx.Tokens().RevokeAllByRole(ctx, roleID, tokens.TypeBearer)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("role permissions replaced",
		slog.Int64("role_id", roleID),
		slog.Int("permissions", len(ids)),
		slog.Int64("revoked_tokens", revoked))
	return s.repo.ListPermissionsByRole(ctx, roleID)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
