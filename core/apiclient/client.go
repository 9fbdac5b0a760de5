package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBody caps how much of a backend response is buffered (4MB).
const maxResponseBody = 4 << 20

// Config holds backend connection settings.
type Config struct {
	BaseURL   string        `env:"BACKEND_BASE_URL" envDefault:"http://localhost:8000"`
	TokenPath string        `env:"BACKEND_TOKEN_PATH" envDefault:"/api/v1/auth/token"`
	MePath    string        `env:"BACKEND_ME_PATH" envDefault:"/api/v1/auth/me"`
	Timeout   time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`
}

// Client is the single boundary to the fleet backend. It attaches the bearer
// token, sends JSON, and classifies every outcome exactly once: network
// failures, 401s, and 5xx responses map to sentinel errors so downstream code
// branches on tags instead of transport details.
type Client struct {
	http           *http.Client
	baseURL        *url.URL
	tokenPath      string
	mePath         string
	onUnauthorized func(context.Context)
	logger         *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithUnauthorizedHook registers a callback fired whenever an authenticated
// call receives a 401. The hook runs at most once per response, outside any
// client lock, and is the global forced-logout entry point.
func WithUnauthorizedHook(hook func(context.Context)) Option {
	return func(c *Client) {
		c.onUnauthorized = hook
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

// New creates a backend client from configuration.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("apiclient: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: base URL %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   base,
		tokenPath: cfg.TokenPath,
		mePath:    cfg.MePath,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Response is a classified backend response. Body is fully buffered.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Join(ErrDecodeResponse, err)
	}
	return nil
}

// User is the backend's wire representation of an account.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Active    bool   `json:"is_active"`
	CompanyID string `json:"company_id"`
}

// Company is the backend's wire representation of a tenant.
type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"company_code"`
}

// LoginResponse is the token endpoint payload.
type LoginResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	User        User    `json:"user"`
	Company     Company `json:"company"`
}

// MeResponse is the token-validation endpoint payload.
type MeResponse struct {
	User    User    `json:"user"`
	Company Company `json:"company"`
}

// Login exchanges credentials for a token. The token endpoint expects a
// form-urlencoded body, unlike the rest of the JSON API. A 401 here means bad
// credentials and does not fire the unauthorized hook: there is no session to
// clear yet.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.tokenPath, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusBadRequest:
		return nil, ErrInvalidCredentials
	case resp.Status >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrServer, resp.Status)
	case resp.Status < 200 || resp.Status >= 300:
		return nil, apiErrorFrom(resp)
	}

	var out LoginResponse
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: token endpoint returned no access_token", ErrDecodeResponse)
	}
	return &out, nil
}

// Me validates the token against the backend and returns refreshed identity data.
func (c *Client) Me(ctx context.Context, token string) (*MeResponse, error) {
	resp, err := c.Do(ctx, http.MethodGet, c.mePath, nil, nil, token)
	if err != nil {
		return nil, err
	}

	var out MeResponse
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Do performs an authenticated JSON request against the backend and
// classifies the outcome. A 2xx response is returned with a nil error;
// everything else maps to the package error taxonomy.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any, token string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("apiclient: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Status == http.StatusUnauthorized:
		if c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
		return nil, ErrUnauthorized
	case resp.Status >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrServer, resp.Status)
	case resp.Status < 200 || resp.Status >= 300:
		return nil, apiErrorFrom(resp)
	}

	return resp, nil
}

func (c *Client) send(req *http.Request) (*Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(req.Context(), "backend request failed",
			"method", req.Method, "path", req.URL.Path, "error", err)
		return nil, errors.Join(ErrNetwork, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Join(ErrNetwork, err)
	}

	c.logger.DebugContext(req.Context(), "backend request",
		"method", req.Method, "path", req.URL.Path,
		"status", resp.StatusCode, "duration", time.Since(start))

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// apiErrorFrom extracts a structured error from a non-2xx response body,
// falling back to the HTTP status text.
func apiErrorFrom(resp *Response) *APIError {
	apiErr := &APIError{Status: resp.Status, Message: http.StatusText(resp.Status)}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		if body.Code != "" {
			apiErr.Code = body.Code
		}
		if body.Message != "" {
			apiErr.Message = body.Message
		} else if body.Detail != "" {
			apiErr.Message = body.Detail
		}
	}
	return apiErr
}
