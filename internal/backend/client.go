// Package backend is the uniform HTTP client for the FavTube backend service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where the backend listens in a local install.
const DefaultBaseURL = "http://localhost:8080"

// CallOptions overrides per-call defaults.
type CallOptions struct {
	Method  string
	Headers http.Header
	Body    any
}

// Client wraps outbound backend calls with uniform method/header defaults and
// a fail-on-non-2xx contract. It does not retry.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client rooted at baseURL. A nil httpClient uses a
// client with the given timeout (zero means no client-side timeout).
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Call performs one request against path. A 2xx response with an empty or
// non-JSON body leaves out untouched instead of failing.
func (c *Client) Call(ctx context.Context, path string, opts CallOptions, out any) error {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("backend: marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vals := range opts.Headers {
		req.Header.Del(k)
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("backend request failed", "method", method, "path", path, "error", err)
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}

	slog.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		slog.Debug("backend response is not JSON, treating as empty", "path", path, "error", err)
	}
	return nil
}
