package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ferdifleet/console/core/httperr"
)

// forwardedHeaders is the fixed allow-list; every other request header is
// dropped at the boundary.
var forwardedHeaders = []string{"Authorization", "Content-Type", "Accept", "User-Agent"}

// maxProxyBody caps buffered request bodies (8MB).
const maxProxyBody = 8 << 20

// Proxy forwards browser-originated API calls to the fleet backend unchanged
// in semantics: same method, same path suffix, same query string. It injects
// the session bearer token when the browser sent none, re-encodes the token
// endpoint's JSON body as form-urlencoded (backend contract), and propagates
// the upstream status code. Transport failures surface as a fixed 500 with a
// generic message; internal details never leak to the browser.
type Proxy struct {
	backend     *url.URL
	client      *http.Client
	stripPrefix string
	tokenPath   string
	token       func(ctx context.Context) string
	onUnauth    func(ctx context.Context)
	logger      *slog.Logger
}

// Option configures the Proxy.
type Option func(*Proxy)

// WithHTTPClient replaces the upstream HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Proxy) {
		if hc != nil {
			p.client = hc
		}
	}
}

// WithStripPrefix removes a local mount prefix before forwarding, so the
// gateway's /api/v1/missions reaches the backend as /v1/missions when the
// prefix is "/api".
func WithStripPrefix(prefix string) Option {
	return func(p *Proxy) {
		p.stripPrefix = prefix
	}
}

// WithTokenEndpoint marks the upstream path whose JSON body must be
// re-encoded as form-urlencoded.
func WithTokenEndpoint(path string) Option {
	return func(p *Proxy) {
		p.tokenPath = path
	}
}

// WithTokenSource injects the current session bearer token into forwarded
// requests that carry no Authorization header of their own.
func WithTokenSource(fn func(ctx context.Context) string) Option {
	return func(p *Proxy) {
		p.token = fn
	}
}

// WithUnauthorizedHook registers a callback fired when the upstream answers
// 401, so a stale token observed through the proxy triggers the same forced
// logout as one observed by the API client.
func WithUnauthorizedHook(fn func(ctx context.Context)) Option {
	return func(p *Proxy) {
		p.onUnauth = fn
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Proxy) {
		if log != nil {
			p.logger = log
		}
	}
}

// New creates a proxy targeting the given backend base URL.
func New(backend *url.URL, opts ...Option) *Proxy {
	p := &Proxy{
		backend: backend,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	target := p.targetURL(r)

	body, contentType, err := p.outboundBody(r, target.Path)
	if err != nil {
		httperr.ErrBadRequest.WithMessage("unreadable request body").Write(w)
		return
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		httperr.ErrInternalServerError.WithMessage("upstream request failed").Write(w)
		return
	}

	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Authorization") == "" && p.token != nil {
		if tok := p.token(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("upstream request failed",
			"method", r.Method, "path", target.Path, "error", err)
		httperr.ErrInternalServerError.WithMessage("upstream request failed").Write(w)
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	p.logger.Debug("proxied request",
		"method", r.Method, "path", target.Path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized && p.onUnauth != nil {
		p.onUnauth(ctx)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug("failed to stream upstream response", "error", err)
	}
}

// targetURL rebuilds the upstream URL from the forwarded path segments and
// the original query string.
func (p *Proxy) targetURL(r *http.Request) *url.URL {
	path := r.URL.Path
	if p.stripPrefix != "" {
		path = strings.TrimPrefix(path, p.stripPrefix)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	target := *p.backend
	target.Path = strings.TrimRight(target.Path, "/") + path
	target.RawQuery = r.URL.RawQuery
	return &target
}

// outboundBody prepares the forwarded body. For the token endpoint a JSON
// body is re-encoded as form-urlencoded; everything else passes through
// untouched.
func (p *Proxy) outboundBody(r *http.Request, upstreamPath string) (io.Reader, string, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, "", nil
	}

	if p.tokenPath == "" || upstreamPath != p.tokenPath ||
		!strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return r.Body, "", nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBody))
	if err != nil {
		return nil, "", err
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		// Not JSON after all; forward as-is.
		return bytes.NewReader(raw), "", nil
	}

	form := url.Values{}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			form.Set(k, s)
		}
	}
	return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
}
