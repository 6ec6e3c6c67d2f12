package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/adminkit/internal/shared"
	"github.com/adminkit/adminkit/internal/tokens"
)

type fakeRepo struct {
	roles       map[int64]*Role
	permissions []Permission
	members     map[int64][]int64
	store       *tokens.MemoryStore
}

func newFakeRepo() *fakeRepo {
	repo := &fakeRepo{
		roles: map[int64]*Role{
			1: {ID: 1, Name: "ADMIN", Permissions: []Permission{{ID: 1, Name: "USER_READ"}}},
			2: {ID: 2, Name: "USER"},
		},
		permissions: []Permission{{ID: 1, Name: "USER_READ"}, {ID: 2, Name: "USER_UPDATE"}},
		members:     map[int64][]int64{1: {10}, 2: {20}},
		store:       tokens.NewMemoryStore(),
	}
	repo.store.RoleMembers = func(roleID int64) []int64 { return repo.members[roleID] }
	return repo
}

func (f *fakeRepo) ListRoles(context.Context) ([]Role, error) {
	out := make([]Role, 0, len(f.roles))
	for id := int64(1); id <= int64(len(f.roles)); id++ {
		out = append(out, *f.roles[id])
	}
	return out, nil
}

func (f *fakeRepo) ListPermissions(context.Context) ([]Permission, error) {
	return f.permissions, nil
}

func (f *fakeRepo) ListPermissionsByRole(_ context.Context, roleID int64) ([]Permission, error) {
	role, ok := f.roles[roleID]
	if !ok {
		return nil, nil
	}
	return role.Permissions, nil
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) RoleExists(_ context.Context, roleID int64) (bool, error) {
	_, ok := f.roles[roleID]
	return ok, nil
}

func (f *fakeRepo) CountPermissions(_ context.Context, ids []int64) (int, error) {
	n := 0
	for _, id := range ids {
		for _, p := range f.permissions {
			if p.ID == id {
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeRepo) ReplaceRolePermissions(_ context.Context, roleID int64, ids []int64) error {
	var perms []Permission
	for _, id := range ids {
		for _, p := range f.permissions {
			if p.ID == id {
				perms = append(perms, p)
			}
		}
	}
	f.roles[roleID].Permissions = perms
	return nil
}

func (f *fakeRepo) Tokens() tokens.Store { return f.store }

func seedToken(t *testing.T, store *tokens.MemoryStore, value string, userID int64) {
	t.Helper()
	_, err := store.Save(context.Background(), &tokens.Token{
		Token: value, Type: tokens.TypeBearer, UserID: userID, Expiration: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
}

func TestSetRolePermissionsRevokesMembersTokens(t *testing.T) {
	repo := newFakeRepo()
	seedToken(t, repo.store, "admin-token", 10)
	seedToken(t, repo.store, "user-token", 20)
	svc := NewService(repo, nil)

	perms, err := svc.SetRolePermissions(context.Background(), 1, []int64{2, 1, 2})
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, []string{"USER_READ", "USER_UPDATE"}, Authorities([]Role{*repo.roles[1]}))

	for _, row := range repo.store.All() {
		assert.Equal(t, row.UserID == 10, row.Revoked, row.Token)
	}
}

func TestSetRolePermissionsErrors(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	_, err := svc.SetRolePermissions(context.Background(), 99, []int64{1})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.SetRolePermissions(context.Background(), 1, []int64{42})
	assert.ErrorIs(t, err, shared.ErrBadRequest)
	assert.Len(t, repo.roles[1].Permissions, 1)
}

func allowAll(...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func TestHandlerRoutes(t *testing.T) {
	repo := newFakeRepo()
	router := chi.NewRouter()
	NewHandler(nil, NewService(repo, nil), allowAll).MountRoutes(router)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/role", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"name":"ADMIN"`)

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/permission/role/2", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[]`, res.Body.String())

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/permission/role/abc", nil))
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = httptest.NewRecorder()
	body := strings.NewReader(`{"permissionIds":[2]}`)
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPut, "/role/2/permissions", body))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[{"id":2,"name":"USER_UPDATE"}]`, res.Body.String())

	res = httptest.NewRecorder()
	body = strings.NewReader(`{"permissionIds":[1]}`)
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPut, "/role/77/permissions", body))
	assert.Equal(t, http.StatusNotFound, res.Code)
}
