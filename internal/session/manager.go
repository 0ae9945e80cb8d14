// Package session implements the login/register/logout lifecycle over the
// API client and the persistent token store.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/plateful/plateful-client/internal/apiclient"
	"github.com/plateful/plateful-client/internal/errs"
	"github.com/plateful/plateful-client/internal/model"
	"github.com/plateful/plateful-client/internal/tokenstore"
)

// logoutTimeout bounds the best-effort server-side revocation call so it can
// never block local cleanup for long.
const logoutTimeout = 5 * time.Second

// Manager owns the session lifecycle: it is the only component besides the
// refresh coordinator that mutates token state.
type Manager struct {
	api   *apiclient.Client
	store tokenstore.Store
	log   *zap.Logger
}

// NewManager constructs a Manager. A nil logger disables logging.
func NewManager(api *apiclient.Client, store tokenstore.Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{api: api, store: store, log: log}
}

// Login authenticates a diner account.
func (m *Manager) Login(ctx context.Context, creds model.Credentials) (model.Profile, error) {
	return m.authenticate(ctx, "/auth/login", creds)
}

// CompanyLogin authenticates a business account.
func (m *Manager) CompanyLogin(ctx context.Context, creds model.Credentials) (model.Profile, error) {
	return m.authenticate(ctx, "/auth/company-login", creds)
}

// Register creates a diner account and logs it in.
func (m *Manager) Register(ctx context.Context, reg model.UserRegistration) (model.Profile, error) {
	return m.authenticate(ctx, "/auth/register", reg)
}

// CompanyRegister creates a business account and logs it in.
func (m *Manager) CompanyRegister(ctx context.Context, reg model.CompanyRegistration) (model.Profile, error) {
	return m.authenticate(ctx, "/auth/company-register", reg)
}

// authenticate posts credentials and, on success, persists the session:
// tokens first (a failure here is returned — an unsaved session is unsafe to
// treat as logged in), then the normalized profile and the logged-in flag.
func (m *Manager) authenticate(ctx context.Context, endpoint string, payload any) (model.Profile, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.Profile{}, fmt.Errorf("encode credentials: %w", err)
	}
	res := m.api.Do(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Endpoint:    endpoint,
		Body:        body,
		ContentType: "application/json",
		NoAuth:      true,
	})
	switch {
	case res.Status == http.StatusUnauthorized:
		return model.Profile{}, errs.ErrInvalidCredentials
	case res.Status == 0:
		return model.Profile{}, fmt.Errorf("cannot reach server: %s", res.Err)
	case !res.Success:
		return model.Profile{}, fmt.Errorf("authentication failed: %s", res.Err)
	}

	ar, err := apiclient.Decode[model.AuthResponse](res)
	if err != nil {
		return model.Profile{}, err
	}
	if ar.AccessToken == "" || ar.RefreshToken == "" {
		return model.Profile{}, fmt.Errorf("authentication response missing tokens")
	}

	if err := m.store.StoreTokens(ar.AccessToken, ar.RefreshToken); err != nil {
		return model.Profile{}, fmt.Errorf("persist session: %w", err)
	}
	m.api.SetTokens(ar.AccessToken, ar.RefreshToken)

	profile, ok := model.ProfileFromAuth(ar)
	if ok {
		if err := m.store.StoreProfile(profile); err != nil {
			return model.Profile{}, fmt.Errorf("persist profile: %w", err)
		}
	}
	if err := m.store.SetLoggedIn(true); err != nil {
		return model.Profile{}, fmt.Errorf("persist login flag: %w", err)
	}
	m.log.Info("logged in", zap.String("profile", profile.Type))
	return profile, nil
}

// Logout revokes the refresh token server-side on a best-effort basis and
// always clears local session state, whatever the server call does.
func (m *Manager) Logout(ctx context.Context) {
	defer func() {
		m.api.ClearTokens()
		m.store.Clear()
		m.log.Info("logged out")
	}()

	refresh := m.store.RefreshToken()
	if refresh == "" {
		return
	}
	body, err := json.Marshal(map[string]string{"refreshToken": refresh})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()
	res := m.api.Do(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Endpoint:    "/auth/logout",
		Body:        body,
		ContentType: "application/json",
		NoAuth:      true,
	})
	if !res.Success {
		m.log.Warn("server-side logout failed", zap.Int("status", res.Status), zap.String("err", res.Err))
	}
}

// IsAuthenticated reloads tokens from storage and reports whether a usable
// session exists, proactively refreshing when the stored pair has gone
// stale rather than waiting for a 401. Never returns an error: a failed
// refresh simply yields false (and clears local state).
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	access, refresh := m.store.AccessToken(), m.store.RefreshToken()
	if access == "" || refresh == "" {
		return false
	}
	m.api.SetTokens(access, refresh)
	if m.store.Expired() {
		return m.api.Refresh(ctx)
	}
	return true
}

// Me fetches the current account's profile from the endpoint matching the
// cached discriminator and updates the local cache on success.
func (m *Manager) Me(ctx context.Context) (model.Profile, error) {
	endpoint := "/auth/me"
	typ := model.ProfileUser
	if p, ok := m.store.Profile(); ok && p.Type == model.ProfileCompany {
		endpoint = "/auth/company-me"
		typ = model.ProfileCompany
	}

	res := m.api.Get(ctx, endpoint)
	if res.Status == http.StatusUnauthorized {
		return model.Profile{}, errs.ErrUnauthorized
	}
	profile, err := apiclient.Decode[model.Profile](res)
	if err != nil {
		return model.Profile{}, err
	}
	profile.Type = typ
	if err := m.store.StoreProfile(profile); err != nil {
		m.log.Warn("profile cache update failed", zap.Error(err))
	}
	return profile, nil
}
