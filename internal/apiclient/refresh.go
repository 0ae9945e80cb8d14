package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/plateful/plateful-client/internal/errs"
)

// refreshRequest is the POST /auth/refresh body.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the POST /auth/refresh success body. The server may
// rotate the refresh token; an omitted refreshToken means the old one stays
// valid.
type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh coordinates a token refresh and reports whether a fresh access
// token is available. However many callers observe a 401 simultaneously,
// exactly one network refresh call is made per cycle; all callers share its
// outcome. The in-flight slot is cleared before waiters resolve, so a failed
// refresh can be retried immediately by a later caller.
//
// A failed refresh is terminal for the current session: local tokens and the
// cached profile are cleared so the app never half-believes it is logged in.
func (c *Client) Refresh(ctx context.Context) bool {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		// Detach from the first caller's deadline: a refresh serves every
		// waiter, not just whoever happened to enter first.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return nil, c.performRefresh(refreshCtx)
	})
	return err == nil
}

// performRefresh executes the refresh network call and updates both the
// in-memory token state and persistent storage.
func (c *Client) performRefresh(ctx context.Context) error {
	_, refresh := c.tokens()
	if refresh == "" {
		return errs.ErrNotAuthenticated
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refresh})
	if err != nil {
		return fmt.Errorf("encode refresh request: %w", err)
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		c.log.Warn("token refresh network failure", zap.Error(err))
		c.forceLogout()
		return fmt.Errorf("%w: %s", errs.ErrSessionExpired, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.forceLogout()
		return fmt.Errorf("%w: read refresh response: %s", errs.ErrSessionExpired, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("token refresh rejected", zap.Int("status", resp.StatusCode))
		c.forceLogout()
		return fmt.Errorf("%w: refresh returned status %d", errs.ErrSessionExpired, resp.StatusCode)
	}

	var tr refreshResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		c.forceLogout()
		return fmt.Errorf("%w: parse refresh response: %s", errs.ErrSessionExpired, err)
	}
	if tr.AccessToken == "" {
		c.forceLogout()
		return fmt.Errorf("%w: refresh returned no access token", errs.ErrSessionExpired)
	}

	// Rotation-aware: persist the newest refresh token; keep the old one
	// when the server runs in fixed (non-rotating) mode.
	newRefresh := tr.RefreshToken
	if newRefresh == "" {
		newRefresh = refresh
	}

	c.SetTokens(tr.AccessToken, newRefresh)
	if err := c.store.StoreTokens(tr.AccessToken, newRefresh); err != nil {
		// The session stays valid in memory; persistence catches up on the
		// next successful write.
		c.log.Warn("refreshed tokens not persisted", zap.Error(err))
	}
	c.log.Debug("token refresh complete")
	return nil
}
