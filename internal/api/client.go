// Package api is the gateway to the listio REST backend.
package api

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

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/listio/internal/auth"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8080"

var (
	// ErrTransport wraps failures that produced no HTTP response.
	ErrTransport = errors.New("api: transport failure")
	// ErrValidation wraps payloads rejected before sending.
	ErrValidation = errors.New("api: invalid request")
)

// Error is an HTTP error status returned by the backend.
type Error struct {
	Status  int
	Message string
	// Data is the decoded JSON error body, or the raw text when the body was not JSON.
	Data any
}

func (e *Error) Error() string {
	return e.Message
}

// IsStatus reports whether err carries one of the given HTTP statuses.
func IsStatus(err error, codes ...int) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.Status == c {
			return true
		}
	}
	return false
}

// IsConflict reports an "already exists" response.
func IsConflict(err error) bool {
	return IsStatus(err, http.StatusConflict)
}

// IsUnauthorized reports a rejected session.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized, http.StatusForbidden)
}

// TokenSource supplies the persisted session token when none was set explicitly.
type TokenSource interface {
	Token() string
}

// Observer receives one call per round trip. status is 0 on transport failure.
type Observer interface {
	ObserveRequest(method string, status int, d time.Duration)
}

// Client sends JSON requests to the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate

	mu       sync.RWMutex
	token    string
	source   TokenSource
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.source = ts }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a Client. Trailing slashes are trimmed from baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken sets the explicit bearer token. An empty token clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// SetTokenSource replaces the fallback token source.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.source = ts
	c.mu.Unlock()
}

// Token resolves the bearer token for ctx: a session attached to the context,
// then the explicit token, then the token source.
func (c *Client) Token(ctx context.Context) string {
	if t := auth.Token(ctx); t != "" {
		return t
	}
	c.mu.RLock()
	token, source := c.token, c.source
	c.mu.RUnlock()
	if token != "" {
		return token
	}
	if source != nil {
		return source.Token()
	}
	return ""
}

func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do performs one request and returns the response body. JSON responses are
// returned as-is; a text body is returned JSON-encoded as a string; 204 and
// empty bodies return nil.
//
// body may be nil, []byte, string, url.Values, io.Reader or any value that
// encodes to JSON. Only the last kind is sent as application/json.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, 0, start)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	c.observe(method, resp.StatusCode, start)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrTransport, method, path, err)
	}
	isJSON := strings.Contains(resp.Header.Get("Content-Type"), "application/json")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(resp.StatusCode, data, isJSON)
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if isJSON {
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: %s %s: invalid JSON body", ErrUnrecognizedEnvelope, method, path)
		}
		return json.RawMessage(data), nil
	}
	text, err := json.Marshal(string(data))
	if err != nil {
		return nil, fmt.Errorf("encode text response: %w", err)
	}
	return text, nil
}

// Validate checks v against its validate struct tags.
func (c *Client) Validate(v any) error {
	if err := c.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func (c *Client) resolve(path string) string {
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func (c *Client) observe(method string, status int, start time.Time) {
	c.mu.RLock()
	o := c.observer
	c.mu.RUnlock()
	if o != nil {
		o.ObserveRequest(method, status, time.Since(start))
	}
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case string:
		return strings.NewReader(b), "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	case io.Reader:
		return b, "", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

func newError(status int, body []byte, isJSON bool) *Error {
	e := &Error{
		Status:  status,
		Message: fmt.Sprintf("request failed with status %d", status),
	}
	if isJSON {
		var payload any
		if err := json.Unmarshal(body, &payload); err == nil {
			e.Data = payload
			if obj, ok := payload.(map[string]any); ok {
				if msg, ok := obj["message"].(string); ok && msg != "" {
					e.Message = msg
				}
			}
		}
		return e
	}
	if len(body) > 0 {
		e.Data = string(body)
	}
	return e
}

// query appends non-empty params to path.
func query(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
