// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/adminkit/adminkit/internal/shared"
)

type errorMapping struct {
	target error
	status int
}

// mappings lists every domain error kind with the single status it maps to.
var mappings = []errorMapping{
	{shared.ErrInvalidCredentials, http.StatusUnauthorized},
	{shared.ErrInvalidToken, http.StatusUnauthorized},
	{shared.ErrMalformedToken, http.StatusUnauthorized},
	{shared.ErrExpiredToken, http.StatusUnauthorized},
	{shared.ErrUserNotFound, http.StatusUnauthorized},
	{shared.ErrUnauthorized, http.StatusUnauthorized},
	{shared.ErrForbidden, http.StatusForbidden},
	{shared.ErrBadRequest, http.StatusBadRequest},
	{shared.ErrNotFound, http.StatusNotFound},
	{shared.ErrConflict, http.StatusConflict},
}

// StatusFor returns the HTTP status code for err.
func StatusFor(err error) int {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807. Internal
// errors are logged with full detail and answered with a generic message.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	status := StatusFor(err)
	instance := ""
	if r != nil {
		instance = r.URL.Path
	}
	if status == http.StatusInternalServerError {
		logger.Error("internal error", slog.String("path", instance), slog.Any("error", err))
		Problem(w, status, http.StatusText(status), "Internal server error", instance)
		return
	}
	logger.Warn(http.StatusText(status), slog.String("path", instance), slog.Any("error", err))
	Problem(w, status, http.StatusText(status), err.Error(), instance)
}
