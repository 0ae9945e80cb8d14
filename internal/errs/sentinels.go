// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client/session layers.
var (
	// ErrInvalidCredentials indicates the server rejected the supplied login credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized indicates a request was rejected for missing or invalid authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionExpired indicates the refresh token was rejected; re-login is required.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotAuthenticated indicates no usable tokens exist locally.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrStorageWrite indicates a device storage write failed while persisting the session.
	ErrStorageWrite = errors.New("storage write failed")
)
