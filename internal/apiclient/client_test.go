package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/stretchr/testify/require"

	"github.com/plateful/plateful-client/internal/tokenstore"
)

func newTestClient(t *testing.T, baseURL string) (*Client, *tokenstore.MemStore) {
	t.Helper()
	rc, err := retry.NewClient()
	require.NoError(t, err)
	store := tokenstore.NewMemStore()
	return NewWithClient(baseURL, store, rc, nil), store
}

func seedTokens(t *testing.T, c *Client, store *tokenstore.MemStore, access, refresh string) {
	t.Helper()
	require.NoError(t, store.StoreTokens(access, refresh))
	c.SetTokens(access, refresh)
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeRefresh(w http.ResponseWriter, access, refresh string) {
	_ = json.NewEncoder(w).Encode(map[string]string{
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func TestDo_SingleFlightRefresh(t *testing.T) {
	const concurrent = 8

	var refreshCalls int32
	// All first attempts carry the stale token and gather at the barrier, so
	// every caller observes its 401 before any refresh can complete.
	var barrier sync.WaitGroup
	barrier.Add(concurrent)

	mux := http.NewServeMux()
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) == "AT2" {
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		barrier.Done()
		barrier.Wait()
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "RT1", body.RefreshToken)
		writeRefresh(w, "AT2", "RT2")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	seedTokens(t, c, store, "AT1", "RT1")

	results := make([]Result, concurrent)
	var wg sync.WaitGroup
	wg.Add(concurrent)
	for i := 0; i < concurrent; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background(), "/protected")
		}(i)
	}
	wg.Wait()

	// Exactly one refresh network call, consistent outcome for everyone.
	require.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
	for i, res := range results {
		require.True(t, res.Success, "request %d: %+v", i, res)
	}
	require.Equal(t, "AT2", store.AccessToken())
	require.Equal(t, "RT2", store.RefreshToken())
}

func TestDo_RetryCarriesFreshToken(t *testing.T) {
	var retriedAuth atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) != "AT2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		retriedAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"value":42}`))
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeRefresh(w, "AT2", "RT2")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	seedTokens(t, c, store, "AT1", "RT1")

	res := c.Get(context.Background(), "/data")
	require.True(t, res.Success)
	require.Equal(t, "Bearer AT2", retriedAuth.Load())
	require.Equal(t, "AT2", store.AccessToken())
}

func TestDo_AtMostOneRetry(t *testing.T) {
	var dataCalls, refreshCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dataCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		writeRefresh(w, "AT2", "RT2")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	seedTokens(t, c, store, "AT1", "RT1")

	res := c.Get(context.Background(), "/data")

	// 401 -> refresh -> retry -> 401 again is final; no second refresh loop.
	require.False(t, res.Success)
	require.Equal(t, http.StatusUnauthorized, res.Status)
	require.Equal(t, int32(2), atomic.LoadInt32(&dataCalls))
	require.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
}

func TestDo_ForcedLogoutOnRefreshFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":true,"message":"refresh token invalid","type":"AuthError"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	seedTokens(t, c, store, "AT1", "RT1")
	require.NoError(t, store.SetLoggedIn(true))

	res := c.Get(context.Background(), "/data")

	// Original 401 surfaces to the caller; local session is cleared.
	require.False(t, res.Success)
	require.Equal(t, http.StatusUnauthorized, res.Status)
	require.Empty(t, store.AccessToken())
	require.Empty(t, store.RefreshToken())
	require.False(t, store.LoggedIn())
	require.Empty(t, c.AccessToken())
}

func TestDo_NetworkFailure(t *testing.T) {
	// Point at a server that is already gone.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, _ := newTestClient(t, url)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res := c.Get(ctx, "/anything")
	require.False(t, res.Success)
	require.Equal(t, 0, res.Status)
	require.NotEmpty(t, res.Err)
}

func TestDo_UnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	res := c.Get(context.Background(), "/page")

	require.False(t, res.Success)
	require.Equal(t, http.StatusOK, res.Status)
	require.Contains(t, res.Err, "unparseable")
}

func TestRefresh_RotationFallbackKeepsOldToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		// Fixed mode: no rotated refresh token in the response.
		writeRefresh(w, "AT2", "")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	seedTokens(t, c, store, "AT1", "RT1")

	require.True(t, c.Refresh(context.Background()))
	require.Equal(t, "AT2", store.AccessToken())
	require.Equal(t, "RT1", store.RefreshToken())
}

func TestDo_ColdStartReloadsFromStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) != "AT1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	// Tokens persisted by an earlier process; nothing in memory yet.
	require.NoError(t, store.StoreTokens("AT1", "RT1"))

	res := c.Get(context.Background(), "/data")
	require.True(t, res.Success)
}

func TestDo_CallerCannotUnsetAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer(r) != "AT1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	seedTokens(t, c, store, "AT1", "RT1")

	h := http.Header{}
	h.Set("Authorization", "Bearer forged")
	res := c.Do(context.Background(), Request{
		Method:   http.MethodGet,
		Endpoint: "/data",
		Header:   h,
	})
	require.True(t, res.Success)
}

func TestPostForm_MultipartContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Bistro", r.FormValue("name"))
		f, hdr, err := r.FormFile("logo")
		require.NoError(t, err)
		defer f.Close()
		require.Equal(t, "logo.png", hdr.Filename)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	seedTokens(t, c, store, "AT1", "RT1")

	res := c.PostForm(context.Background(), "/company/logo",
		map[string]string{"name": "Bistro"},
		FormFile{Field: "logo", Name: "logo.png", Content: []byte{0x89, 'P', 'N', 'G'}},
	)
	require.True(t, res.Success)
}

func TestDecode(t *testing.T) {
	type payload struct {
		Value int `json:"value"`
	}

	got, err := Decode[payload](Result{Success: true, Status: 200, Data: []byte(`{"value":42}`)})
	require.NoError(t, err)
	require.Equal(t, 42, got.Value)

	_, err = Decode[payload](Result{Success: false, Status: 503, Err: "down"})
	require.Error(t, err)

	_, err = Decode[payload](Result{Success: true, Status: 200, Data: []byte(`{"value":"x"}`)})
	require.Error(t, err)
}

func TestErrorMessage_Envelopes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"platform envelope", `{"error":true,"message":"Restaurant not found","type":"NotFound"}`, "Restaurant not found"},
		{"oauth envelope", `{"error":"invalid_grant","error_description":"token expired"}`, "token expired"},
		{"plain error string", `{"error":"nope"}`, "nope"},
		{"unstructured", `oops`, fmt.Sprintf("%s: oops", http.StatusText(http.StatusBadGateway))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, errorMessage(http.StatusBadGateway, []byte(tc.body)))
		})
	}
}
