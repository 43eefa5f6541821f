// Package sdk provides the client-side library for the Schemes API.
// It supports both a running API server and a local embedded store.
package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/celerix-dev/schemes/pkg/engine"
	"github.com/celerix-dev/schemes/pkg/schema"
)

// Messages the API uses for identifier and lookup failures.
const (
	msgInvalidID = "Invalid scheme ID"
	msgNotFound  = "Scheme not found"
)

// DefaultBasePath is appended to addresses that carry no path.
const DefaultBasePath = "/api"

const maxAttempts = 3

// APIError is a failure reported by the server that maps to no engine error.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("schemes api: %d %s", e.StatusCode, e.Message)
}

// Client talks to a Schemes API server over HTTP.
// It implements engine.Store.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ engine.Store = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for addr without contacting the server.
// addr may be host:port or a full URL; a URL without a path gets
// DefaultBasePath. Set SCHEMES_TLS_SKIP_VERIFY=true to accept the server's
// self-signed certificate.
func NewClient(addr string, opts ...Option) (*Client, error) {
	base, err := normalizeBaseURL(addr)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if os.Getenv("SCHEMES_TLS_SKIP_VERIFY") == "true" {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect returns a client for addr after checking the server answers.
func Connect(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	c, err := NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func normalizeBaseURL(addr string) (string, error) {
	if addr == "" {
		return "", errors.New("empty api address")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse api address: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api address %q has no host", addr)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultBasePath
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// BaseURL returns the URL every request path is appended to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type envelope struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) Create(ctx context.Context, in schema.SchemeInput) (*schema.Scheme, error) {
	var out schema.Scheme
	if err := c.do(ctx, http.MethodPost, "/schemes", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FindByID(ctx context.Context, id string) (*schema.Scheme, error) {
	var out schema.Scheme
	if err := c.do(ctx, http.MethodGet, "/schemes/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FindMany(ctx context.Context, f schema.Filter) ([]*schema.Scheme, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	path := "/schemes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	out := []*schema.Scheme{}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateByID(ctx context.Context, id string, in schema.SchemeInput) (*schema.Scheme, error) {
	var out schema.Scheme
	if err := c.do(ctx, http.MethodPut, "/schemes/"+url.PathEscape(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteByID(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/schemes/"+url.PathEscape(id), nil, nil)
}

// Ping checks the server's readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodGet, "/health/ready", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "server not ready"}
	}
	return nil
}

// do performs a request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if resp.StatusCode >= 300 || !env.Success {
		return decodeError(resp.StatusCode, env.Error)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send issues the request, retrying transport failures with backoff.
// POST is never retried so a lost response cannot create a duplicate.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	attempts := maxAttempts
	if method == http.MethodPost {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if i+1 < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration((i+1)*200) * time.Millisecond):
			}
		}
	}
	return nil, fmt.Errorf("%s %s: %w", method, path, lastErr)
}

// decodeError maps an error response back onto the engine errors.
func decodeError(status int, msg string) error {
	switch {
	case status == http.StatusNotFound && msg == msgNotFound:
		return engine.ErrNotFound
	case status == http.StatusBadRequest && msg == msgInvalidID:
		return engine.ErrInvalidID
	case status == http.StatusBadRequest && msg != "":
		verr := &engine.ValidationError{}
		for _, m := range strings.Split(msg, ", ") {
			verr.Errors = append(verr.Errors, schema.FieldError{Message: m})
		}
		return verr
	default:
		return &APIError{StatusCode: status, Message: msg}
	}
}
