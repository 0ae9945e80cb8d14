// Package apiclient implements the authenticated HTTP request executor and
// the single-flight token refresh coordinator for the Plateful API.
package apiclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/plateful/plateful-client/internal/tokenstore"
)

// Timeouts for internally issued auth calls. Regular requests run on the
// caller's context.
const (
	refreshTimeout = 10 * time.Second
)

// Client executes API requests with bearer-token injection and a
// refresh-then-retry-once recovery path on 401 responses.
//
// In-memory token state is mutated only by the refresh coordinator and the
// session layer (via SetTokens/ClearTokens); the executor itself only reads
// it. No lock is held across network I/O beyond singleflight's per-key wait.
type Client struct {
	baseURL string
	http    *retry.Client
	store   tokenstore.Store
	log     *zap.Logger

	mu      sync.RWMutex
	access  string
	refresh string

	refreshGroup singleflight.Group
}

// New constructs a Client for the given API base URL (no trailing slash
// required). A nil logger disables logging.
func New(baseURL string, store tokenstore.Store, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	base := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	rc, err := retry.NewBackgroundClient(retry.WithHTTPClient(base))
	if err != nil {
		return nil, fmt.Errorf("retry client: %w", err)
	}
	return NewWithClient(baseURL, store, rc, log), nil
}

// NewWithClient constructs a Client over a caller-supplied HTTP client, for
// tests and callers with custom transport policies.
func NewWithClient(baseURL string, store tokenstore.Store, rc *retry.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: trimSlash(baseURL),
		http:    rc,
		store:   store,
		log:     log,
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SetTokens replaces the in-memory token pair. Persisting them is the
// caller's responsibility (see tokenstore.Store).
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access, c.refresh = access, refresh
}

// ClearTokens drops the in-memory token pair.
func (c *Client) ClearTokens() { c.SetTokens("", "") }

// AccessToken returns the in-memory access token, reloading from the store
// when the in-memory state is cold (e.g. right after process start).
func (c *Client) AccessToken() string {
	access, _ := c.tokens()
	return access
}

// tokens returns the current pair, lazily reloading from persistent storage
// when the in-memory access token is absent.
func (c *Client) tokens() (access, refresh string) {
	c.mu.RLock()
	access, refresh = c.access, c.refresh
	c.mu.RUnlock()
	if access != "" {
		return access, refresh
	}

	stored, storedRefresh := c.store.AccessToken(), c.store.RefreshToken()
	if stored == "" && storedRefresh == "" {
		return access, refresh
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.access == "" {
		c.access, c.refresh = stored, storedRefresh
	}
	return c.access, c.refresh
}

// forceLogout clears local session state after a terminal auth failure so the
// app never believes it might still be authenticated.
func (c *Client) forceLogout() {
	c.ClearTokens()
	c.store.Clear()
	c.log.Warn("session terminated: local credentials cleared")
}
