package rbac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adminkit/adminkit/internal/platform/db"
	"github.com/adminkit/adminkit/internal/tokens"
)

// Repository reads the authorization model.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListPermissionsByRole(ctx context.Context, roleID int64) ([]Permission, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes that must commit together.
type TxRepository interface {
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	CountPermissions(ctx context.Context, ids []int64) (int, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	Tokens() tokens.Store
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListRoles returns every role with its permissions, ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.name, p.id, p.name
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
ORDER BY r.name, p.name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()

	var (
		roles []Role
		index = map[int64]int{}
	)
	for rows.Next() {
		var (
			roleID   int64
			roleName string
			permID   *int64
			permName *string
		)
		if err := rows.Scan(&roleID, &roleName, &permID, &permName); err != nil {
			return nil, fmt.Errorf("rbac: scan role: %w", err)
		}
		pos, ok := index[roleID]
		if !ok {
			roles = append(roles, Role{ID: roleID, Name: roleName})
			pos = len(roles) - 1
			index[roleID] = pos
		}
		if permID != nil && permName != nil {
			roles[pos].Permissions = append(roles[pos].Permissions, Permission{ID: *permID, Name: *permName})
		}
	}
	return roles, rows.Err()
}

// ListPermissions returns all permissions ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	return collectPermissions(rows)
}

// ListPermissionsByRole returns the permissions granted to a role.
func (r *PGRepository) ListPermissionsByRole(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name
FROM permissions p
JOIN role_permissions rp ON rp.permission_id = p.id
WHERE rp.role_id = $1
ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("rbac: list role permissions: %w", err)
	}
	return collectPermissions(rows)
}

// WithTx runs fn inside a database transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists)
	return exists, err
}

func (r *pgTxRepository) CountPermissions(ctx context.Context, ids []int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM permissions WHERE id = ANY($1)`, ids).Scan(&n)
	return n, err
}

func (r *pgTxRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("rbac: clear role permissions: %w", err)
	}
	if len(permissionIDs) == 0 {
		return nil
	}
	if _, err := r.tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING`, roleID, permissionIDs); err != nil {
		return fmt.Errorf("rbac: insert role permissions: %w", err)
	}
	return nil
}

func (r *pgTxRepository) Tokens() tokens.Store {
	return tokens.NewPGStore(r.tx)
}

func collectPermissions(rows pgx.Rows) ([]Permission, error) {
	perms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Permission, error) {
		var p Permission
		err := row.Scan(&p.ID, &p.Name)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("rbac: scan permissions: %w", err)
	}
	return perms, nil
}
