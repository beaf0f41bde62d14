package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every request
const DefaultTimeout = 30 * time.Second

// Client represents an HTTP client for the HPA management API.
// Credentials travel as cookies held by the client's cookie jar; no bearer
// token is ever sent. Every failure is returned as *APIError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	mu      sync.RWMutex
	headers http.Header
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout overrides the request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithCookieJar sets the jar holding the session cookie
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.httpClient.Jar = jar
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a new API client for baseURL (e.g. http://localhost:8080/api)
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:  zerolog.Nop(),
		headers: make(http.Header),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Cookies must always be attached, even without a persistent jar
	if c.httpClient.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.httpClient.Jar = jar
	}

	return c
}

// SetHTTPClient sets a custom HTTP client, keeping the current cookie jar if
// the new client has none
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient.Jar == nil {
		httpClient.Jar = c.httpClient.Jar
	}
	c.httpClient = httpClient
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHeader sets a header sent with every request (CSRF tokens, etc.)
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Set(key, value)
}

// RemoveHeader removes a header previously set with SetHeader
func (c *Client) RemoveHeader(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Del(key)
}

// Cookies returns the cookies the jar would send to the API
func (c *Client) Cookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil || c.httpClient.Jar == nil {
		return nil
	}
	return c.httpClient.Jar.Cookies(u)
}

// Get issues a GET request and decodes the JSON response into out
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request with an optional JSON body
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT request with an optional JSON body
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

// Patch issues a PATCH request with an optional JSON body
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete issues a DELETE request
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return c.setupFailed(method, path, fmt.Errorf("failed to marshal request: %w", err))
		}
		reader = bytes.NewReader(jsonData)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, method, path, query, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decode(resp, out)
}

// send performs the request and returns the response only when it is 2xx.
// The caller owns the response body.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	target, err := c.resolve(path, query)
	if err != nil {
		return nil, c.setupFailed(method, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, c.setupFailed(method, path, fmt.Errorf("failed to create request: %w", err))
	}
	// NewRequest only knows the length of the stdlib buffer types
	if sized, ok := body.(interface{ Size() int64 }); ok {
		req.ContentLength = sized.Size()
	}

	c.mu.RLock()
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	c.mu.RUnlock()

	requestID := ulid.Make().String()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	log := c.logger.With().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Logger()

	log.Debug().Msg("[API] request")
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("[API] No response")
		return nil, networkError(err)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("[API] response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		apiErr := httpError(resp.StatusCode, data)

		// 401 is expected for unauthenticated users
		if resp.StatusCode != http.StatusUnauthorized {
			log.Error().
				Int("status", apiErr.Status).
				Str("message", apiErr.Message).
				Str("code", apiErr.Code).
				Msg("[API] Response error")
		}
		return nil, apiErr
	}

	return resp, nil
}

func (c *Client) decode(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return decodeError(resp.StatusCode, err)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return decodeError(resp.StatusCode, err)
	}
	return nil
}

func (c *Client) setupFailed(method, path string, err error) error {
	c.logger.Error().Err(err).Str("method", method).Str("path", path).Msg("[API] Request setup error")
	return setupError(err)
}

// resolve joins a relative API path onto the base URL
func (c *Client) resolve(path string, query url.Values) (string, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if rel.IsAbs() || rel.Host != "" {
		return "", fmt.Errorf("path %q must be relative to the API base URL", path)
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid API base URL %q: %w", c.baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", errors.New("API base URL must include scheme and host")
	}

	rawPath := strings.TrimRight(base.EscapedPath(), "/") + "/" + strings.TrimLeft(rel.EscapedPath(), "/")
	base.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	base.RawPath = rawPath

	values := rel.Query()
	for key, vs := range query {
		for _, v := range vs {
			values.Add(key, v)
		}
	}
	base.RawQuery = values.Encode()

	return base.String(), nil
}
