package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adminkit/adminkit/internal/platform/db"
	"github.com/adminkit/adminkit/internal/rbac"
	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/tokens"
)

// Repository defines data access methods for users.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	FindEnabledByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, q ListQuery) ([]User, int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the user writes that must commit together with token revocation.
type TxRepository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u NewUser) (int64, error)
	UpdatePassword(ctx context.Context, userID int64, hash string) error
	UpdateProfile(ctx context.Context, userID int64, profile Profile) error
	ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error
	Delete(ctx context.Context, userID int64) error
	Tokens() tokens.Store
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, username, password, name, surname, email, enabled, created_at, updated_at`

// FindByUsername loads a user and its role/permission graph.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return findOne(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// FindByID loads a user and its role/permission graph.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return findOne(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindEnabledByEmail loads an enabled user by email.
func (r *PGRepository) FindEnabledByEmail(ctx context.Context, email string) (*User, error) {
	return findOne(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) AND enabled = TRUE`, email)
}

// List returns one page of users matching the filter and the total match count.
func (r *PGRepository) List(ctx context.Context, q ListQuery) ([]User, int64, error) {
	page := q.Page.Normalize()
	where, args := listWhere(q.Filter)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}
	if total == 0 {
		return []User{}, 0, nil
	}

	column, ok := SortColumns[page.Sort]
	if !ok {
		column = "id"
	}
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY %s %s, id LIMIT $%d OFFSET $%d`,
		userColumns, where, column, page.Direction, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		var u User
		err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Surname, &u.Email, &u.Enabled, &u.CreatedAt, &u.UpdatedAt)
		return u, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("users: scan list: %w", err)
	}
	for i := range out {
		if out[i].Roles, err = loadRoles(ctx, r.pool, out[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func listWhere(f ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, field := range []struct{ column, value string }{
		{"username", f.Username},
		{"email", f.Email},
		{"name", f.Name},
		{"surname", f.Surname},
	} {
		if value := strings.TrimSpace(field.value); value != "" {
			args = append(args, value)
			conds = append(conds, fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", field.column, len(args)))
		}
	}
	if len(f.RoleIDs) > 0 {
		args = append(args, f.RoleIDs)
		conds = append(conds, fmt.Sprintf("id IN (SELECT user_id FROM user_roles WHERE role_id = ANY($%d))", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
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

func (r *pgTxRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return findOne(ctx, r.tx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgTxRepository) Create(ctx context.Context, u NewUser) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO users (username, password, name, surname, email, enabled)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, u.Username, u.PasswordHash, u.Name, u.Surname, u.Email, u.Enabled).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return 0, fmt.Errorf("%w: username or email already taken", shared.ErrConflict)
		}
		return 0, fmt.Errorf("users: create: %w", err)
	}
	return id, nil
}

func (r *pgTxRepository) UpdatePassword(ctx context.Context, userID int64, hash string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE users SET password = $2, updated_at = NOW() WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("users: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) UpdateProfile(ctx context.Context, userID int64, p Profile) error {
	tag, err := r.tx.Exec(ctx, `UPDATE users
SET username = $2, name = $3, surname = $4, email = $5, enabled = $6, updated_at = NOW()
WHERE id = $1`, userID, p.Username, p.Name, p.Surname, p.Email, p.Enabled)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("%w: username or email already taken", shared.ErrConflict)
		}
		return fmt.Errorf("users: update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("users: clear roles: %w", err)
	}
	if len(roleIDs) == 0 {
		return nil
	}
	tag, err := r.tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id)
SELECT $1, id FROM roles WHERE id = ANY($2)
ON CONFLICT DO NOTHING`, userID, roleIDs)
	if err != nil {
		return fmt.Errorf("users: assign roles: %w", err)
	}
	if int(tag.RowsAffected()) != len(roleIDs) {
		return fmt.Errorf("%w: unknown role id", shared.ErrBadRequest)
	}
	return nil
}

func (r *pgTxRepository) Delete(ctx context.Context, userID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) Tokens() tokens.Store {
	return tokens.NewPGStore(r.tx)
}

func findOne(ctx context.Context, q db.DBTX, query string, arg any) (*User, error) {
	var u User
	err := q.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Surname, &u.Email, &u.Enabled, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: find: %w", err)
	}
	roles, err := loadRoles(ctx, q, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func loadRoles(ctx context.Context, q db.DBTX, userID int64) ([]rbac.Role, error) {
	rows, err := q.Query(ctx, `SELECT r.id, r.name, p.id, p.name
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY r.id, p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("users: load roles: %w", err)
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var (
			roleID   int64
			roleName string
			permID   *int64
			permName *string
		)
		if err := rows.Scan(&roleID, &roleName, &permID, &permName); err != nil {
			return nil, fmt.Errorf("users: scan role: %w", err)
		}
		if len(roles) == 0 || roles[len(roles)-1].ID != roleID {
			roles = append(roles, rbac.Role{ID: roleID, Name: roleName})
		}
		if permID != nil && permName != nil {
			last := &roles[len(roles)-1]
			last.Permissions = append(last.Permissions, rbac.Permission{ID: *permID, Name: *permName})
		}
	}
	return roles, rows.Err()
}
