// Package tokenstore persists session tokens and the cached account profile
// on the device.
package tokenstore

import (
	"time"

	"github.com/plateful/plateful-client/internal/model"
)

// TokenFreshness is the window after which locally stored tokens are treated
// as stale and a refresh is attempted regardless of actual token validity.
const TokenFreshness = 15 * time.Minute

// Store is the device key-value persistence contract for session state.
//
// Reads return zero values (never errors) when a key is absent or unreadable:
// callers must fall back to re-authentication rather than crash. Writes that
// fail surface errs.ErrStorageWrite, which login/register flows must treat as
// fatal for the current auth operation.
type Store interface {
	// StoreTokens writes both tokens and a fresh stored-at timestamp as a
	// single batched write.
	StoreTokens(access, refresh string) error
	// AccessToken returns the stored access token, or "" when absent.
	AccessToken() string
	// RefreshToken returns the stored refresh token, or "" when absent.
	RefreshToken() string
	// Clear removes tokens, timestamp, cached profile and the logged-in flag
	// together. Best-effort: failures are logged, never returned, and must
	// not leave valid-looking tokens behind.
	Clear()
	// Expired reports whether no stored-at timestamp exists or more than
	// TokenFreshness has elapsed since the last StoreTokens.
	Expired() bool

	// StoreProfile caches the normalized account profile under the key
	// matching its discriminator ("user" or "company").
	StoreProfile(p model.Profile) error
	// Profile returns the cached profile; ok is false when none is cached.
	Profile() (p model.Profile, ok bool)
	// SetLoggedIn records the logged-in flag.
	SetLoggedIn(v bool) error
	// LoggedIn reports the logged-in flag.
	LoggedIn() bool

	// DeviceID returns a stable per-device identifier, generating and
	// persisting one on first use.
	DeviceID() string
}
