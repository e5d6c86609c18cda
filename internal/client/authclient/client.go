// Package authclient talks to the artistry server: the auth endpoints, the
// session change stream and the demo API.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"supa-artistry/internal/client/kv"
	"supa-artistry/internal/logger"
)

// TokenStorageKey is where the bearer session token is kept.
const TokenStorageKey = "authSessionToken"

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Option func(*Client)

// WithHTTPClient replaces the client used for ordinary requests. The
// session stream always uses a copy without a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client is the shared HTTP client. The bearer token lives in a kv.Store
// so it survives restarts.
type Client struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
	store  kv.Store

	// serializes token writes against conditional removal
	tokenMu sync.Mutex
}

func New(baseURL string, store kv.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:  u,
		http:  &http.Client{Timeout: defaultTimeout},
		store: store,
	}
	for _, opt := range opts {
		opt(c)
	}

	streamClient := *c.http
	streamClient.Timeout = 0
	c.stream = &streamClient

	return c, nil
}

// Token returns the stored session token, or "" when there is none or it
// cannot be read.
func (c *Client) Token() string {
	token, err := c.store.Get(TokenStorageKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			logger.Warn("session token unreadable", map[string]any{
				"error": err.Error(),
			})
		}
		return ""
	}
	return token
}

func (c *Client) setToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if err := c.store.Set(TokenStorageKey, token); err != nil {
		logger.Warn("session token not persisted", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *Client) clearToken() {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.removeToken()
}

// clearTokenIf removes the stored token only while it is still token.
func (c *Client) clearTokenIf(token string) bool {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.Token() != token {
		return false
	}
	c.removeToken()
	return true
}

func (c *Client) removeToken() {
	if err := c.store.Remove(TokenStorageKey); err != nil {
		logger.Warn("session token not removed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *Client) url(path string) string {
	return c.base.String() + path
}

// newRequest builds a request carrying the bearer token when one is held.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes a 2xx response
// into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, header http.Header) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}
