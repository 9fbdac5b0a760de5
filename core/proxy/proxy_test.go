package proxy_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferdifleet/console/core/proxy"
)

type capturedRequest struct {
	method  string
	path    string
	query   string
	headers http.Header
	body    []byte
}

func newUpstream(t *testing.T, status int, respond func(r *http.Request) []byte) (*httptest.Server, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.query = r.URL.RawQuery
		captured.headers = r.Header.Clone()
		captured.body, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if respond != nil {
			_, _ = w.Write(respond(r))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newProxy(t *testing.T, backendURL string, opts ...proxy.Option) *proxy.Proxy {
	t.Helper()

	u, err := url.Parse(backendURL)
	require.NoError(t, err)
	return proxy.New(u, opts...)
}

func TestProxy_Forwarding(t *testing.T) {
	t.Parallel()

	t.Run("rebuilds path and query against the backend", func(t *testing.T) {
		t.Parallel()

		srv, captured := newUpstream(t, http.StatusOK, func(*http.Request) []byte { return []byte(`[]`) })
		p := newProxy(t, srv.URL, proxy.WithStripPrefix("/api"))

		r := httptest.NewRequest(http.MethodGet, "/api/v1/missions?page=2&status=planned", nil)
		w := httptest.NewRecorder()
		p.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "/v1/missions", captured.path)
		assert.Equal(t, "page=2&status=planned", captured.query)
	})

	t.Run("forwards only allow-listed headers", func(t *testing.T) {
		t.Parallel()

		srv, captured := newUpstream(t, http.StatusOK, nil)
		p := newProxy(t, srv.URL)

		r := httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
		r.Header.Set("Authorization", "Bearer tok-123")
		r.Header.Set("Accept", "application/json")
		r.Header.Set("User-Agent", "ferdi-console/1.0")
		r.Header.Set("X-Forwarded-For", "10.0.0.1")
		r.Header.Set("Cookie", "ferdi_session=abc")
		r.Header.Set("Referer", "http://localhost:3000/missions")

		w := httptest.NewRecorder()
		p.ServeHTTP(w, r)

		assert.Equal(t, "Bearer tok-123", captured.headers.Get("Authorization"))
		assert.Equal(t, "application/json", captured.headers.Get("Accept"))
		assert.Equal(t, "ferdi-console/1.0", captured.headers.Get("User-Agent"))
		assert.Empty(t, captured.headers.Get("X-Forwarded-For"))
		assert.Empty(t, captured.headers.Get("Cookie"))
		assert.Empty(t, captured.headers.Get("Referer"))
	})

	t.Run("injects session token when browser sent none", func(t *testing.T) {
		t.Parallel()

		srv, captured := newUpstream(t, http.StatusOK, nil)
		p := newProxy(t, srv.URL, proxy.WithTokenSource(func(context.Context) string { return "tok-session" }))

		r := httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
		w := httptest.NewRecorder()
		p.ServeHTTP(w, r)

		assert.Equal(t, "Bearer tok-session", captured.headers.Get("Authorization"))
	})

	t.Run("browser token wins over injected token", func(t *testing.T) {
		t.Parallel()

		srv, captured := newUpstream(t, http.StatusOK, nil)
		p := newProxy(t, srv.URL, proxy.WithTokenSource(func(context.Context) string { return "tok-session" }))

		r := httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
		r.Header.Set("Authorization", "Bearer tok-explicit")
		w := httptest.NewRecorder()
		p.ServeHTTP(w, r)

		assert.Equal(t, "Bearer tok-explicit", captured.headers.Get("Authorization"))
	})
}

func TestProxy_TokenEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("re-encodes JSON login body as form", func(t *testing.T) {
		t.Parallel()

		srv, captured := newUpstream(t, http.StatusOK, nil)
		p := newProxy(t, srv.URL,
			proxy.WithStripPrefix("/api"),
			proxy.WithTokenEndpoint("/v1/auth/token"),
		)

		body := strings.NewReader(`{"email":"ops@ferdi.example","password":"secret"}`)
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", body)
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		p.ServeHTTP(w, r)

		assert.Contains(t, captured.headers.Get("Content-Type"), "application/x-www-form-urlencoded")
		form, err := url.ParseQuery(string(captured.body))
		require.NoError(t, err)
		assert.Equal(t, "ops@ferdi.example", form.Get("email"))
		assert.Equal(t, "secret", form.Get("password"))
	})

	t.Run("other endpoints keep JSON bodies", func(t *testing.T) {
		t.Parallel()

		srv, captured := newUpstream(t, http.StatusCreated, nil)
		p := newProxy(t, srv.URL, proxy.WithTokenEndpoint("/v1/auth/token"))

		body := strings.NewReader(`{"plate":"AB-123-CD"}`)
		r := httptest.NewRequest(http.MethodPost, "/v1/vehicles", body)
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		p.ServeHTTP(w, r)

		assert.Contains(t, captured.headers.Get("Content-Type"), "application/json")
		assert.JSONEq(t, `{"plate":"AB-123-CD"}`, string(captured.body))
	})
}

func TestProxy_StatusPropagation(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusOK, http.StatusCreated, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			srv, _ := newUpstream(t, status, func(*http.Request) []byte { return []byte(`{"detail":"x"}`) })
			p := newProxy(t, srv.URL)

			r := httptest.NewRequest(http.MethodGet, "/v1/missions", nil)
			w := httptest.NewRecorder()
			p.ServeHTTP(w, r)

			assert.Equal(t, status, w.Code)
			assert.JSONEq(t, `{"detail":"x"}`, w.Body.String())
		})
	}
}

func TestProxy_UpstreamFailure(t *testing.T) {
	t.Parallel()

	srv, _ := newUpstream(t, http.StatusOK, nil)
	srv.Close() // backend gone

	p := newProxy(t, srv.URL)
	r := httptest.NewRequest(http.MethodGet, "/v1/missions", nil)
	w := httptest.NewRecorder()
	p.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "upstream request failed", body["message"])
	// No stack traces or transport details leak.
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestProxy_UnauthorizedHook(t *testing.T) {
	t.Parallel()

	t.Run("fires on upstream 401", func(t *testing.T) {
		t.Parallel()

		srv, _ := newUpstream(t, http.StatusUnauthorized, nil)
		fired := false
		p := newProxy(t, srv.URL, proxy.WithUnauthorizedHook(func(context.Context) { fired = true }))

		r := httptest.NewRequest(http.MethodGet, "/v1/missions", nil)
		w := httptest.NewRecorder()
		p.ServeHTTP(w, r)

		assert.True(t, fired)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("quiet on success", func(t *testing.T) {
		t.Parallel()

		srv, _ := newUpstream(t, http.StatusOK, nil)
		fired := false
		p := newProxy(t, srv.URL, proxy.WithUnauthorizedHook(func(context.Context) { fired = true }))

		r := httptest.NewRequest(http.MethodGet, "/v1/missions", nil)
		w := httptest.NewRecorder()
		p.ServeHTTP(w, r)

		assert.False(t, fired)
	})
}
