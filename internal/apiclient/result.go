package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Result is the envelope returned by every request. The executor never
// returns raw errors to callers: network failures resolve to Status 0,
// server failures carry the HTTP status and an extracted message.
type Result struct {
	// Data holds the raw JSON body on success; decode it with Decode.
	Data json.RawMessage
	// Status is 0 for network-level failure, else the HTTP status.
	Status int
	// Success is true iff the HTTP status indicated success and the body
	// parsed as JSON (or was empty).
	Success bool
	// Err is a human-readable failure description when Success is false.
	Err string
}

// errorEnvelope matches the server's standardized error body.
type errorEnvelope struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	// Some endpoints use the OAuth-style shape instead.
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// networkFailure converts a transport-level error into a Result.
func networkFailure(err error) Result {
	return Result{Status: 0, Success: false, Err: err.Error()}
}

// newResult classifies an HTTP response body into a Result.
func newResult(status int, body []byte) Result {
	ok := status >= 200 && status < 300
	if ok {
		if len(body) == 0 {
			return Result{Status: status, Success: true}
		}
		if !json.Valid(body) {
			return Result{
				Status:  status,
				Success: false,
				Err:     fmt.Sprintf("unparseable response body: %s", snippet(body)),
			}
		}
		return Result{Status: status, Success: true, Data: body}
	}
	return Result{Status: status, Success: false, Err: errorMessage(status, body)}
}

// errorMessage extracts a displayable message from an error response body.
func errorMessage(status int, body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.ErrorDescription != "" {
			return env.ErrorDescription
		}
		// "error" may be a plain string rather than the boolean flag.
		var s string
		if json.Unmarshal(env.Error, &s) == nil && s != "" {
			return s
		}
	}
	if len(body) > 0 {
		return fmt.Sprintf("%s: %s", http.StatusText(status), snippet(body))
	}
	return http.StatusText(status)
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// Decode unmarshals a successful result's payload into T. Decode failures
// are per-request errors and never affect token state.
func Decode[T any](r Result) (T, error) {
	var v T
	if !r.Success {
		return v, fmt.Errorf("request failed (status %d): %s", r.Status, r.Err)
	}
	if len(r.Data) == 0 {
		return v, fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Data, &v); err != nil {
		return v, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}
