package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Request describes one API call executed by Do.
type Request struct {
	Method   string
	Endpoint string // path relative to the base URL, e.g. "/auth/me"
	// Body is buffered so a 401-triggered retry can replay it unchanged.
	Body        []byte
	ContentType string
	Header      http.Header
	// NoAuth skips bearer injection and the refresh-retry path. Used for
	// login/register/logout, where a 401 means bad credentials rather than
	// an expired access token.
	NoAuth bool
}

// Do executes req and resolves every outcome to a Result; it never panics
// and never returns an error. On a 401 with a usable refresh token it
// coordinates a single-flight refresh and retries the original request
// exactly once with the new token; it never loops on repeated 401s.
func (c *Client) Do(ctx context.Context, req Request) Result {
	access, refresh := "", ""
	if !req.NoAuth {
		access, refresh = c.tokens()
	}

	res := c.send(ctx, req, access)
	if req.NoAuth || res.Status != http.StatusUnauthorized || refresh == "" {
		return res
	}

	if !c.Refresh(ctx) {
		// Terminal: surface the original 401 to the caller.
		return res
	}

	// The coordinator persisted the rotated pair; pick up the fresh access
	// token from storage for the single retry.
	retryRes := c.send(ctx, req, c.store.AccessToken())
	return retryRes
}

// send performs one HTTP round trip and classifies the response.
func (c *Client) send(ctx context.Context, req Request, access string) Result {
	httpReq, err := http.NewRequestWithContext(
		ctx, req.Method, c.baseURL+req.Endpoint, bytes.NewReader(req.Body),
	)
	if err != nil {
		return networkFailure(fmt.Errorf("build request: %w", err))
	}

	// Caller headers first; auth and request-id overlay them so a caller
	// cannot unset the bearer token.
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}
	if rid, err := uuid.NewV4(); err == nil {
		httpReq.Header.Set("X-Request-Id", rid.String())
	}

	resp, err := c.http.DoWithContext(ctx, httpReq)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("endpoint", req.Endpoint),
			zap.Error(err),
		)
		return networkFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkFailure(fmt.Errorf("read response: %w", err))
	}

	c.log.Debug("request",
		zap.String("method", req.Method),
		zap.String("endpoint", req.Endpoint),
		zap.Int("status", resp.StatusCode),
	)
	return newResult(resp.StatusCode, body)
}

// --- request helpers, all delegating to Do ---

// Get issues an authenticated GET.
func (c *Client) Get(ctx context.Context, endpoint string) Result {
	return c.Do(ctx, Request{Method: http.MethodGet, Endpoint: endpoint})
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, payload any) Result {
	return c.doJSON(ctx, http.MethodPost, endpoint, payload)
}

// Put issues an authenticated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, payload any) Result {
	return c.doJSON(ctx, http.MethodPut, endpoint, payload)
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, endpoint string) Result {
	return c.Do(ctx, Request{Method: http.MethodDelete, Endpoint: endpoint})
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload any) Result {
	var body []byte
	contentType := ""
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return networkFailure(fmt.Errorf("encode request body: %w", err))
		}
		contentType = "application/json"
	}
	return c.Do(ctx, Request{
		Method:      method,
		Endpoint:    endpoint,
		Body:        body,
		ContentType: contentType,
	})
}

// FormFile is one file part of a multipart upload.
type FormFile struct {
	Field   string
	Name    string
	Content []byte
}

// PostForm issues an authenticated multipart POST. The content type comes
// from the multipart writer so the boundary is always correct; any
// caller-supplied JSON content type does not apply to file uploads.
func (c *Client) PostForm(ctx context.Context, endpoint string, fields map[string]string, files ...FormFile) Result {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return networkFailure(fmt.Errorf("encode form field %q: %w", k, err))
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return networkFailure(fmt.Errorf("encode form file %q: %w", f.Field, err))
		}
		if _, err := part.Write(f.Content); err != nil {
			return networkFailure(fmt.Errorf("encode form file %q: %w", f.Field, err))
		}
	}
	if err := w.Close(); err != nil {
		return networkFailure(fmt.Errorf("finalize form: %w", err))
	}
	return c.Do(ctx, Request{
		Method:      http.MethodPost,
		Endpoint:    endpoint,
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
	})
}
