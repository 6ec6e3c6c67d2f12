package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/adminkit/adminkit/internal/testing/guard"
	"github.com/adminkit/adminkit/internal/tokens"
)

func newRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, f.svc).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerLogin(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	rec := do(t, h, "/login", `{"username":"admin","password":"Password"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pair TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	subject, err := f.codec.ExtractUsername(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)
	assert.NotEmpty(t, pair.RefreshToken)

	rec = do(t, h, "/login", `{"username":"admin","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, "/login", `{"username":""}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRefresh(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	rec := do(t, h, "/refresh-token", "", "invalid-refresh-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, "/refresh-token", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pair, err := f.svc.Login(context.Background(), "admin", "Password")
	require.NoError(t, err)
	rec = do(t, h, "/refresh-token", "", pair.RefreshToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var next TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.NotEmpty(t, next.AccessToken)
}

func TestHandlerForgotPasswordHidesAccountExistence(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	known := do(t, h, "/forgot-password", `{"email":"admin@example.com"}`, "")
	unknown := do(t, h, "/forgot-password", `{"email":"nobody@example.com"}`, "")
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Empty(t, known.Body.String())
	assert.Empty(t, unknown.Body.String())
	f.svc.Drain()
	assert.Len(t, f.mailer.delivered(), 1)

	rec := do(t, h, "/forgot-password", `{"email":"not-an-email"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerResetPassword(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	rec := do(t, h, "/reset-password", `{"token":"invalid-reset-token","newPassword":"Whatever1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.forgot(t, "admin@example.com")
	body := `{"token":"` + f.mailer.delivered()[0].Token + `","newPassword":"Whatever1"}`
	rec = do(t, h, "/reset-password", body, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, "/reset-password", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerLogout(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	rec := do(t, h, "/logout", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pair, err := f.svc.Login(context.Background(), "admin", "Password")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		rec = do(t, h, "/logout", "", pair.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec = do(t, h, "/logout", "", "never-issued")
	assert.Equal(t, http.StatusOK, rec.Code)

	bearers := f.tokensOf(tokens.TypeBearer)
	require.Len(t, bearers, 1)
	assert.True(t, bearers[0].Revoked)
}
