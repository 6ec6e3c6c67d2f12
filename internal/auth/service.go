package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adminkit/adminkit/internal/email"
	"github.com/adminkit/adminkit/internal/platform/db"
	"github.com/adminkit/adminkit/internal/security"
	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/tokens"
	"github.com/adminkit/adminkit/internal/users"
)

// Deps groups the collaborators of Service.
type Deps struct {
	Users       users.Repository
	Loader      UserDetailsLoader
	Tokens      tokens.Store
	Codec       *security.Codec
	Credentials CredentialChecker
	Mailer      ResetMailer
	Logger      *slog.Logger
	Observer    Observer
	// MailTimeout bounds one background reset-email dispatch.
	MailTimeout time.Duration
}

// DefaultMailTimeout is used when Deps.MailTimeout is zero.
const DefaultMailTimeout = 15 * time.Second

// Service implements the login, refresh, logout and password reset flows.
type Service struct {
	users       users.Repository
	loader      UserDetailsLoader
	tokens      tokens.Store
	codec       *security.Codec
	credentials CredentialChecker
	mailer      ResetMailer
	logger      *slog.Logger
	observer    Observer
	mailTimeout time.Duration

	pending sync.WaitGroup
}

// NewService constructs a new Service.
func NewService(deps Deps) *Service {
	s := &Service{
		users:       deps.Users,
		loader:      deps.Loader,
		tokens:      deps.Tokens,
		codec:       deps.Codec,
		credentials: deps.Credentials,
		mailer:      deps.Mailer,
		logger:      deps.Logger,
		observer:    deps.Observer,
		mailTimeout: deps.MailTimeout,
	}
	if s.mailTimeout <= 0 {
		s.mailTimeout = DefaultMailTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.credentials == nil {
		s.credentials = NewBcryptCredentials(deps.Users)
	}
	if s.loader == nil {
		s.loader = users.NewService(deps.Users, s.logger)
	}
	return s
}

// Login verifies credentials and issues an access/refresh pair. Every login
// stores a new bearer record.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.credentials.Authenticate(ctx, username, password)
	if err != nil {
		s.observe("login", outcomeOf(err))
		return nil, err
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		s.observe("login", "error")
		return nil, err
	}
	s.observe("login", "success")
	s.logger.Info("user logged in", slog.String("username", user.Username))
	return pair, nil
}

// Refresh issues a new pair for the subject of a valid refresh token. Access
// and reset-password tokens are rejected. The old refresh token stays usable
// until it expires.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	s.observe("refresh", outcomeOf(err))
	return pair, err
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	username, err := s.codec.ExtractSubjectOfKind(refreshToken, security.KindRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	user, err := s.loader.LoadUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", shared.ErrInvalidToken)
		}
		return nil, err
	}
	if !s.codec.IsTokenValid(refreshToken, user.Username) {
		return nil, fmt.Errorf("%w: subject mismatch", shared.ErrInvalidToken)
	}
	if !user.Enabled {
		return nil, fmt.Errorf("%w: account disabled", shared.ErrInvalidToken)
	}
	return s.issuePair(ctx, user)
}

// Logout revokes the stored record of an access token. Unknown and already
// revoked tokens succeed without a write.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	record, err := s.tokens.FindByToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.observe("logout", "unknown_token")
			return nil
		}
		return err
	}
	if record.Revoked {
		s.observe("logout", "already_revoked")
		return nil
	}
	if _, err := s.tokens.Revoke(ctx, record.ID); err != nil {
		return err
	}
	s.observe("logout", "success")
	return nil
}

// ForgotPassword issues a reset-password token for an enabled account and
// queues the email in the background. Unknown addresses and dispatch failures
// are not reported to the caller, and the caller never waits on the broker.
func (s *Service) ForgotPassword(ctx context.Context, address string) error {
	user, err := s.users.FindEnabledByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.observe("forgot_password", "unknown_email")
			return nil
		}
		s.logger.Error("forgot password lookup", slog.Any("error", err))
		s.observe("forgot_password", "error")
		return nil
	}
	token, err := s.codec.IssueResetPasswordToken(user)
	if err != nil {
		s.logger.Error("issue reset password token", slog.Any("error", err))
		return nil
	}
	if err := s.store(ctx, token, tokens.TypeResetPassword, user.ID); err != nil {
		s.logger.Error("store reset password token", slog.Int64("user_id", user.ID), slog.Any("error", err))
		s.observe("forgot_password", "error")
		return nil
	}
	if s.mailer != nil {
		s.dispatchReset(ctx, user.ID, email.ResetPasswordEmail{Email: user.Email, Name: user.Name, Token: token})
	}
	s.observe("forgot_password", "success")
	return nil
}

func (s *Service) dispatchReset(ctx context.Context, userID int64, msg email.ResetPasswordEmail) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.mailer.SendResetPassword(ctx, msg); err != nil {
			s.logger.Error("queue reset password email", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}()
}

// Drain blocks until every queued reset email has been handed to the mailer
// or timed out.
func (s *Service) Drain() {
	s.pending.Wait()
}

// ResetPassword consumes a reset-password token. The new password, the
// revocation of the token and of the user's bearer tokens commit together.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	err := s.resetPassword(ctx, token, newPassword)
	s.observe("reset_password", outcomeOf(err))
	return err
}

func (s *Service) resetPassword(ctx context.Context, token, newPassword string) error {
	record, err := s.tokens.FindActiveByTokenAndType(ctx, token, tokens.TypeResetPassword)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: reset token not active", shared.ErrInvalidToken)
		}
		return err
	}
	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: reset token owner missing", shared.ErrInvalidToken)
		}
		return err
	}
	if !s.codec.IsTokenValid(token, user.Username) {
		return fmt.Errorf("%w: reset token invalid for user", shared.ErrInvalidToken)
	}
	hash, err := users.HashPassword(newPassword)
	if err != nil {
		return err
	}
	err = s.users.WithTx(ctx, func(ctx context.Context, tx users.TxRepository) error {
		won, err := tx.Tokens().Revoke(ctx, record.ID)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("%w: reset token already used", shared.ErrInvalidToken)
		}
		if err := tx.UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		_, err = tx.Tokens().RevokeAll(ctx, user.ID, tokens.TypeBearer)
		return err
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: reset token already used", shared.ErrInvalidToken)
	}
	return err
}

// RevokeAllTokensOfUser revokes every bearer token of the user.
func (s *Service) RevokeAllTokensOfUser(ctx context.Context, userID int64) (int64, error) {
	return s.tokens.RevokeAll(ctx, userID, tokens.TypeBearer)
}

func (s *Service) issuePair(ctx context.Context, user *users.User) (*TokenPair, error) {
	access, err := s.codec.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}
	if err := s.store(ctx, access, tokens.TypeBearer, user.ID); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) store(ctx context.Context, token string, typ tokens.Type, userID int64) error {
	expiration, err := s.codec.ExpirationOf(token)
	if err != nil {
		return fmt.Errorf("auth: read expiration: %w", err)
	}
	_, err = s.tokens.Save(ctx, &tokens.Token{
		Token:      token,
		Type:       typ,
		Expiration: expiration,
		UserID:     userID,
	})
	return err
}

func (s *Service) observe(flow, outcome string) {
	if s.observer != nil {
		s.observer.ObserveAuth(flow, outcome)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, shared.ErrInvalidToken):
		return "invalid_token"
	default:
		return "error"
	}
}
