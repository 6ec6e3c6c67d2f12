package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers refresh/reset tokens that are missing, malformed, expired or revoked.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMalformedToken is raised by the codec when structure or signature is invalid.
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken is raised by the codec when the token is past its expiration.
	ErrExpiredToken = errors.New("expired token")
	// ErrUserNotFound indicates the referenced user no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized indicates a request without a valid principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a principal lacking the required authority.
	ErrForbidden = errors.New("forbidden")
	// ErrBadRequest indicates a structurally invalid request.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
)
