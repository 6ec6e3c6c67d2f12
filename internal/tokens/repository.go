package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adminkit/adminkit/internal/platform/db"
	"github.com/adminkit/adminkit/internal/shared"
)

// Store defines persistence operations for issued tokens.
type Store interface {
	Save(ctx context.Context, token *Token) (*Token, error)
	FindByToken(ctx context.Context, token string) (*Token, error)
	FindActiveByTokenAndType(ctx context.Context, token string, typ Type) (*Token, error)
	Revoke(ctx context.Context, id int64) (bool, error)
	RevokeAll(ctx context.Context, userID int64, typ Type) (int64, error)
	RevokeAllByRole(ctx context.Context, roleID int64, typ Type) (int64, error)
	RevokeAllOfDisabledUsers(ctx context.Context, typ Type) (int64, error)
	PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGStore implements Store on PostgreSQL. It runs against a pool or a transaction.
type PGStore struct {
	db db.DBTX
}

// NewPGStore constructs a PostgreSQL token store.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{db: conn}
}

const tokenColumns = `id, token, token_type, revoked, expiration, user_id`

// Save inserts a new token or updates an existing one by ID. Revocation is
// monotonic: an update never turns revoked back to false.
func (s *PGStore) Save(ctx context.Context, token *Token) (*Token, error) {
	if token == nil {
		return nil, errors.New("tokens: nil token")
	}
	if token.Type == "" {
		token.Type = TypeBearer
	}
	if !token.Type.Valid() {
		return nil, fmt.Errorf("tokens: unknown type %q", token.Type)
	}
	var row pgx.Row
	if token.ID == 0 {
		row = s.db.QueryRow(ctx, `INSERT INTO tokens (token, token_type, revoked, expiration, user_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+tokenColumns, token.Token, string(token.Type), token.Revoked, token.Expiration.UTC(), token.UserID)
	} else {
		row = s.db.QueryRow(ctx, `UPDATE tokens
SET revoked = revoked OR $2, expiration = $3
WHERE id = $1
RETURNING `+tokenColumns, token.ID, token.Revoked, token.Expiration.UTC())
	}
	saved, err := scanToken(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uk_tokens_token") {
			return nil, fmt.Errorf("tokens: %w: token already stored", shared.ErrConflict)
		}
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("tokens: save id %d: %w", token.ID, err)
		}
		return nil, fmt.Errorf("tokens: save: %w", err)
	}
	return saved, nil
}

// FindByToken returns the token row for the exact token string.
func (s *PGStore) FindByToken(ctx context.Context, token string) (*Token, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE token = $1`, token)
	return scanToken(row)
}

// FindActiveByTokenAndType returns the token only when it is not revoked.
func (s *PGStore) FindActiveByTokenAndType(ctx context.Context, token string, typ Type) (*Token, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens
WHERE token = $1 AND token_type = $2 AND revoked = FALSE`, token, string(typ))
	return scanToken(row)
}

// Revoke flips a single token to revoked. It reports false when the row is
// missing or was already revoked, so only one caller ever wins.
func (s *PGStore) Revoke(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE tokens SET revoked = TRUE WHERE id = $1 AND revoked = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("tokens: revoke %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeAll marks every token of the user and type as revoked.
func (s *PGStore) RevokeAll(ctx context.Context, userID int64, typ Type) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE tokens SET revoked = TRUE
WHERE user_id = $1 AND token_type = $2 AND revoked = FALSE`, userID, string(typ))
	if err != nil {
		return 0, fmt.Errorf("tokens: revoke all: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RevokeAllByRole revokes the tokens of every user holding the role.
func (s *PGStore) RevokeAllByRole(ctx context.Context, roleID int64, typ Type) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE tokens SET revoked = TRUE
WHERE token_type = $2 AND revoked = FALSE
  AND user_id IN (SELECT user_id FROM user_roles WHERE role_id = $1)`, roleID, string(typ))
	if err != nil {
		return 0, fmt.Errorf("tokens: revoke by role: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RevokeAllOfDisabledUsers revokes the tokens still active for disabled users.
func (s *PGStore) RevokeAllOfDisabledUsers(ctx context.Context, typ Type) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE tokens SET revoked = TRUE
WHERE token_type = $1 AND revoked = FALSE
  AND user_id IN (SELECT id FROM users WHERE enabled = FALSE)`, string(typ))
	if err != nil {
		return 0, fmt.Errorf("tokens: revoke disabled: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeExpiredBefore deletes tokens whose expiration predates cutoff.
func (s *PGStore) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM tokens WHERE expiration < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("tokens: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanToken(row pgx.Row) (*Token, error) {
	var (
		t   Token
		typ string
	)
	if err := row.Scan(&t.ID, &t.Token, &typ, &t.Revoked, &t.Expiration, &t.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	t.Type = Type(typ)
	return &t, nil
}

var _ Store = (*PGStore)(nil)
