package auth

import (
	"context"

	"github.com/adminkit/adminkit/internal/email"
	"github.com/adminkit/adminkit/internal/users"
)

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginRequest carries user credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=72"`
}

// CredentialChecker verifies a username/password pair and returns the
// account with its authorization graph, or shared.ErrInvalidCredentials.
type CredentialChecker interface {
	Authenticate(ctx context.Context, username, password string) (*users.User, error)
}

// UserDetailsLoader resolves an account by username, or shared.ErrUserNotFound.
type UserDetailsLoader interface {
	LoadUserByUsername(ctx context.Context, username string) (*users.User, error)
}

// ResetMailer dispatches the reset-password email.
type ResetMailer interface {
	SendResetPassword(ctx context.Context, msg email.ResetPasswordEmail) error
}

// Observer counts flow outcomes.
type Observer interface {
	ObserveAuth(flow, outcome string)
}
