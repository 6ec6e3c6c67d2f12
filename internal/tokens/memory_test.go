package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/adminkit/internal/shared"
)

func TestSaveNeverUnrevokes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	saved, err := store.Save(ctx, &Token{Token: "a", Type: TypeBearer, UserID: 1, Expiration: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	saved.Revoked = true
	_, err = store.Save(ctx, saved)
	require.NoError(t, err)

	saved.Revoked = false
	again, err := store.Save(ctx, saved)
	require.NoError(t, err)
	assert.True(t, again.Revoked)
}

func TestSaveRejectsDuplicateTokenString(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Save(ctx, &Token{Token: "dup", UserID: 1})
	require.NoError(t, err)
	_, err = store.Save(ctx, &Token{Token: "dup", UserID: 2})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestFindActiveByTokenAndType(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.Save(ctx, &Token{Token: "reset", Type: TypeResetPassword, UserID: 1})
	require.NoError(t, err)

	_, err = store.FindActiveByTokenAndType(ctx, "reset", TypeBearer)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	found, err := store.FindActiveByTokenAndType(ctx, "reset", TypeResetPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.UserID)

	n, err := store.RevokeAll(ctx, 1, TypeResetPassword)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.FindActiveByTokenAndType(ctx, "reset", TypeResetPassword)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRevokeAllScopesByUserAndType(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, tok := range []Token{
		{Token: "u1-bearer", Type: TypeBearer, UserID: 1},
		{Token: "u1-reset", Type: TypeResetPassword, UserID: 1},
		{Token: "u2-bearer", Type: TypeBearer, UserID: 2},
	} {
		tok := tok
		_, err := store.Save(ctx, &tok)
		require.NoError(t, err)
	}

	n, err := store.RevokeAll(ctx, 1, TypeBearer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for _, row := range store.All() {
		assert.Equal(t, row.Token == "u1-bearer", row.Revoked, row.Token)
	}
}

func TestRevokeAllByRoleAndDisabled(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.RoleMembers = func(roleID int64) []int64 {
		if roleID == 7 {
			return []int64{1}
		}
		return nil
	}
	store.DisabledUsers = func() []int64 { return []int64{2} }
	for i, user := range []int64{1, 2, 3} {
		_, err := store.Save(ctx, &Token{Token: string(rune('a' + i)), Type: TypeBearer, UserID: user})
		require.NoError(t, err)
	}

	n, err := store.RevokeAllByRole(ctx, 7, TypeBearer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.RevokeAllOfDisabledUsers(ctx, TypeBearer)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := store.FindActiveByTokenAndType(ctx, "c", TypeBearer)
	require.NoError(t, err)
	assert.Equal(t, int64(3), active.UserID)
}

func TestPurgeExpiredBeforeKeepsGraceWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	_, err := store.Save(ctx, &Token{Token: "old", UserID: 1, Expiration: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = store.Save(ctx, &Token{Token: "recent", UserID: 1, Expiration: now.Add(-time.Hour)})
	require.NoError(t, err)

	n, err := store.PurgeExpiredBefore(ctx, PurgeCutoff(now))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.FindByToken(ctx, "recent")
	assert.NoError(t, err)
	_, err = store.FindByToken(ctx, "old")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRevokeWinsOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	saved, err := store.Save(ctx, &Token{Token: "once", Type: TypeResetPassword, UserID: 1})
	require.NoError(t, err)

	ok, err := store.Revoke(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Revoke(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Revoke(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}
