package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/tokens"
	"github.com/adminkit/adminkit/internal/users"
)

// AccountLifecycleSuite walks one account through every token flow.
type AccountLifecycleSuite struct {
	suite.Suite
	f   *fixture
	ctx context.Context
}

func (s *AccountLifecycleSuite) SetupTest() {
	s.f = newFixture(s.T())
	s.ctx = context.Background()
}

func (s *AccountLifecycleSuite) TestLoginRefreshResetLogout() {
	t := s.T()

	// Two sessions, then a refresh on the first.
	first, err := s.f.svc.Login(s.ctx, "admin", "Password")
	require.NoError(t, err)
	second, err := s.f.svc.Login(s.ctx, "admin", "Password")
	require.NoError(t, err)
	s.f.now = s.f.now.Add(20 * time.Minute)
	rotated, err := s.f.svc.Refresh(s.ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Len(t, s.f.tokensOf(tokens.TypeBearer), 3)

	principal, err := s.f.codec.ReconstructPrincipal(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", principal.Username)
	assert.Equal(t, []string{shared.PermUserRead, shared.PermUserUpdate}, principal.Authorities)

	// Password reset revokes every bearer token.
	s.f.forgot(t, "admin@example.com")
	require.NoError(t, s.f.svc.ResetPassword(s.ctx, s.f.mailer.delivered()[0].Token, "Sw0rdfish!"))
	for _, tok := range s.f.tokensOf(tokens.TypeBearer) {
		assert.True(t, tok.Revoked, tok.Token)
	}

	// Logging out an already revoked session is a no-op.
	writes := s.f.store.Writes
	require.NoError(t, s.f.svc.Logout(s.ctx, second.AccessToken))
	assert.Equal(t, writes, s.f.store.Writes)

	// The new password starts a fresh session.
	fresh, err := s.f.svc.Login(s.ctx, "admin", "Sw0rdfish!")
	require.NoError(t, err)
	require.NoError(t, s.f.svc.Logout(s.ctx, fresh.AccessToken))
	record, err := s.f.store.FindByToken(s.ctx, fresh.AccessToken)
	require.NoError(t, err)
	assert.True(t, record.Revoked)
}

func (s *AccountLifecycleSuite) TestDisabledAccountLosesRefresh() {
	t := s.T()
	pair, err := s.f.svc.Login(s.ctx, "admin", "Password")
	require.NoError(t, err)

	require.NoError(t, s.f.repo.WithTx(s.ctx, func(ctx context.Context, tx users.TxRepository) error {
		current, err := tx.FindByID(ctx, s.f.admin.ID)
		if err != nil {
			return err
		}
		return tx.UpdateProfile(ctx, current.ID, users.Profile{
			Username: current.Username,
			Name:     current.Name,
			Surname:  current.Surname,
			Email:    current.Email,
			Enabled:  false,
		})
	}))

	_, err = s.f.svc.Refresh(s.ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, shared.ErrInvalidToken)
	_, err = s.f.svc.Login(s.ctx, "admin", "Password")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAccountLifecycleSuite(t *testing.T) {
	suite.Run(t, new(AccountLifecycleSuite))
}
