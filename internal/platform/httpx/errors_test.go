package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminkit/adminkit/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		shared.ErrInvalidCredentials:                          http.StatusUnauthorized,
		shared.ErrInvalidToken:                                http.StatusUnauthorized,
		shared.ErrMalformedToken:                              http.StatusUnauthorized,
		shared.ErrExpiredToken:                                http.StatusUnauthorized,
		shared.ErrUserNotFound:                                http.StatusUnauthorized,
		shared.ErrForbidden:                                   http.StatusForbidden,
		fmt.Errorf("%w: missing email", shared.ErrBadRequest): http.StatusBadRequest,
		shared.ErrNotFound:                                    http.StatusNotFound,
		shared.ErrConflict:                                    http.StatusConflict,
		errors.New("connection reset"):                        http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/role", nil)
	res := httptest.NewRecorder()

	RespondError(res, req, nil, errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, res.Code)
	var body ProblemDetail
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "Internal server error", body.Detail)
	assert.Equal(t, "/api/role", body.Instance)
}

func TestRespondErrorEchoesMessageForTypedErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/reset-password", nil)
	res := httptest.NewRecorder()

	RespondError(res, req, nil, shared.ErrInvalidToken)

	require.Equal(t, http.StatusUnauthorized, res.Code)
	var body ProblemDetail
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "invalid token", body.Detail)
	assert.Equal(t, http.StatusUnauthorized, body.Status)
}

func TestOKWritesEmpty200(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
