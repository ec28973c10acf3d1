// Package gateway is the client handle to the hosted backend: relational
// queries, named remote procedures, authentication and realtime change
// subscriptions. Everything else in the module is built on top of it.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to the backend's REST surface.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
	log        *logrus.Logger
}

// Config holds client configuration.
type Config struct {
	// URL is the project base URL, e.g. https://abc.supabase.co.
	URL string
	// APIKey is the anonymous API key sent with every request.
	APIKey string
	// HTTPClient overrides the default client. Leave nil to get a client
	// with the default timeout and retry transport.
	HTTPClient *http.Client
	// Retry configures the retry transport. Nil means DefaultRetryConfig.
	Retry *RetryConfig
	// Timeout bounds every request in addition to the caller's context.
	// Zero means 30 seconds.
	Timeout time.Duration
	// Logger receives request-level debug logging.
	Logger *logrus.Logger
}

// New creates a gateway client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("gateway: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway: APIKey is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		retry := DefaultRetryConfig()
		if cfg.Retry != nil {
			retry = *cfg.Retry
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: newRetryTransport(http.DefaultTransport, retry),
		}
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		log:        log,
	}, nil
}

// WithToken returns a view of the client that authenticates requests with the
// given user access token instead of the anonymous key. The underlying HTTP
// client is shared.
func (c *Client) WithToken(accessToken string) *Client {
	clone := *c
	clone.token = accessToken
	return &clone
}

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table}
}

// RPC calls a named remote procedure. Domain transitions that have a
// procedure must go through it rather than raw table writes, so multi-row
// invariants stay server-side.
func (c *Client) RPC(ctx context.Context, fn string, params any) (*Response, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, fn)

	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("gateway: marshal rpc params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: create request: %w", err)
	}
	c.setHeaders(req)
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req)
}

// Auth returns the auth surface of the gateway.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// Response is a decoded-on-demand API response.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// APIError is a failed gateway call. Code carries the remote error code when
// the backend provides one (e.g. "23505" for a unique violation), so callers
// can map constraint failures without string matching.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("gateway: status %d", e.StatusCode)
}

// IsUniqueViolation reports whether the error is a duplicate-row constraint
// failure.
func (e *APIError) IsUniqueViolation() bool {
	return e.Code == "23505"
}

// IsNotFound reports whether the error is a missing-row failure.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Code == "PGRST116"
}

// IsUnauthorized reports whether the session was missing, expired or
// rejected.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"method":  req.Method,
		"path":    req.URL.Path,
		"status":  resp.StatusCode,
		"elapsed": time.Since(started),
	}).Debug("gateway request")

	out := &Response{StatusCode: resp.StatusCode, Body: body, Header: resp.Header}
	if resp.StatusCode >= 400 {
		return out, decodeAPIError(out)
	}
	return out, nil
}

func decodeAPIError(r *Response) error {
	apiErr := &APIError{StatusCode: r.StatusCode}
	var payload struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Code             any    `json:"code"`
	}
	if err := json.Unmarshal(r.Body, &payload); err == nil {
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Msg != "":
			apiErr.Message = payload.Msg
		case payload.ErrorDescription != "":
			apiErr.Message = payload.ErrorDescription
		case payload.Error != "":
			apiErr.Message = payload.Error
		}
		if payload.Code != nil {
			apiErr.Code = fmt.Sprintf("%v", payload.Code)
		}
	}
	return apiErr
}
