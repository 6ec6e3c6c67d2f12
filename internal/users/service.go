package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/tokens"
)

// Service handles user business logic. Every mutation that changes what an
// access token embeds (username, roles, enabled flag, password) revokes the
// user's bearer tokens in the same transaction.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// LoadUserByUsername returns the user with its role/permission graph, or
// shared.ErrUserNotFound.
func (s *Service) LoadUserByUsername(ctx context.Context, username string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("users: %q: %w", username, shared.ErrUserNotFound)
		}
		return nil, err
	}
	return user, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// CreateUser stores a new account with a bcrypt hash and its role links. A
// taken username or email is shared.ErrConflict; an unknown role is
// shared.ErrBadRequest.
func (s *Service) CreateUser(ctx context.Context, in CreateInput) (*User, error) {
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		newID, err := tx.Create(ctx, NewUser{
			Username:     strings.TrimSpace(in.Username),
			PasswordHash: hash,
			Name:         in.Name,
			Surname:      in.Surname,
			Email:        strings.TrimSpace(in.Email),
			Enabled:      enabled,
		})
		if err != nil {
			return err
		}
		id = newID
		return tx.ReplaceRoles(ctx, newID, uniqueSorted(in.RoleIDs))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", slog.Int64("user_id", id), slog.String("username", in.Username))
	return s.repo.FindByID(ctx, id)
}

// ListUsers returns one page of users matching the filter.
func (s *Service) ListUsers(ctx context.Context, q ListQuery) (*shared.Page[User], error) {
	q.Page = q.Page.Normalize()
	if q.Page.Sort != "" {
		if _, ok := SortColumns[q.Page.Sort]; !ok {
			return nil, fmt.Errorf("%w: unknown sort %q", shared.ErrBadRequest, q.Page.Sort)
		}
	}
	rows, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return &shared.Page[User]{
		Pagination: shared.NewPagination(q.Page.Page, q.Page.PerPage, total),
		Data:       rows,
	}, nil
}

// UpdateUser applies a partial profile update.
func (s *Service) UpdateUser(ctx context.Context, id int64, in UpdateInput) (*User, error) {
	var revoked int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		profile := Profile{
			Username: current.Username,
			Name:     current.Name,
			Surname:  current.Surname,
			Email:    current.Email,
			Enabled:  current.Enabled,
		}
		if in.Username != nil {
			profile.Username = strings.TrimSpace(*in.Username)
		}
		if in.Name != nil {
			profile.Name = strings.TrimSpace(*in.Name)
		}
		if in.Surname != nil {
			profile.Surname = strings.TrimSpace(*in.Surname)
		}
		if in.Email != nil {
			profile.Email = strings.TrimSpace(*in.Email)
		}
		if in.Enabled != nil {
			profile.Enabled = *in.Enabled
		}
		if err := tx.UpdateProfile(ctx, id, profile); err != nil {
			return err
		}

		invalidate := profile.Username != current.Username || (current.Enabled && !profile.Enabled)
		if in.RoleIDs != nil {
			next := uniqueSorted(in.RoleIDs)
			if !slices.Equal(next, uniqueSorted(current.RoleIDs())) {
				if err := tx.ReplaceRoles(ctx, id, next); err != nil {
					return err
				}
				invalidate = true
			}
		}
		if invalidate {
			revoked, err = tx.Tokens().RevokeAll(ctx, id, tokens.TypeBearer)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if revoked > 0 {
		s.logger.Info("user tokens revoked after update", slog.Int64("user_id", id), slog.Int64("count", revoked))
	}
	return s.repo.FindByID(ctx, id)
}

// ChangePassword verifies the current password, stores the new hash and
// revokes the user's bearer tokens atomically.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		user, err := tx.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.ErrUserNotFound
			}
			return err
		}
		if !PasswordMatches(user.PasswordHash, currentPassword) {
			return fmt.Errorf("%w: current password does not match", shared.ErrBadRequest)
		}
		if err := tx.UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		_, err = tx.Tokens().RevokeAll(ctx, userID, tokens.TypeBearer)
		return err
	})
}

// DeleteUser removes a user. Its tokens and role links cascade.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Delete(ctx, id)
	})
}

func uniqueSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
