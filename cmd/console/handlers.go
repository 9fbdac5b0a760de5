package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ferdifleet/console/core/apiclient"
	"github.com/ferdifleet/console/core/cookie"
	"github.com/ferdifleet/console/core/httperr"
	"github.com/ferdifleet/console/core/monitor"
	"github.com/ferdifleet/console/core/role"
	"github.com/ferdifleet/console/core/session"
	"github.com/ferdifleet/console/pkg/logger"
)

// app carries the wired gateway components the HTTP handlers work against.
type app struct {
	log        *slog.Logger
	sessions   *session.Manager
	monitor    *monitor.Monitor
	cookies    *cookie.Manager
	cookieName string
	mockData   bool
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Redirect string       `json:"redirect"`
	Session  session.Info `json:"session"`
}

type sessionResponse struct {
	session.Info
	MockData bool `json:"mock_data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleLogin validates the form locally first so a bad submission never
// reaches the network, then runs the atomic login through the session manager.
func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.ErrBadRequest.WithMessage("request body must be valid JSON").Write(w)
		return
	}

	fields := make(map[string]string)
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		fields["email"] = "email is required"
	} else if !strings.Contains(req.Email, "@") {
		fields["email"] = "email address is not valid"
	}
	if req.Password == "" {
		fields["password"] = "password is required"
	}
	if len(fields) > 0 {
		httperr.ErrUnprocessableEntity.WithFields(fields).Write(w)
		return
	}

	ctx := r.Context()
	if err := a.sessions.Login(ctx, req.Email, req.Password); err != nil {
		a.writeLoginError(w, err)
		return
	}

	if err := a.cookies.SetSigned(w, a.cookieName, a.sessions.Token(ctx)); err != nil {
		a.log.Warn("failed to set session cookie", logger.Error(err))
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Redirect: a.postLoginRedirect(r),
		Session:  a.sessions.SessionInfo(ctx),
	})
}

func (a *app) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apiclient.ErrInvalidCredentials):
		httperr.ErrUnauthorized.WithMessage("Invalid email or password").Write(w)
	case errors.Is(err, session.ErrLoginInProgress):
		httperr.ErrConflict.WithMessage("A login attempt is already in progress").Write(w)
	case errors.Is(err, apiclient.ErrNetwork), errors.Is(err, apiclient.ErrServer):
		httperr.ErrServiceUnavailable.WithMessage("The backend is unavailable, try again shortly").Write(w)
	case errors.Is(err, session.ErrUnknownRole), errors.Is(err, session.ErrInvalidIdentity):
		httperr.ErrForbidden.WithMessage("This account cannot use the console").Write(w)
	default:
		a.log.Error("login failed", logger.Error(err))
		httperr.ErrInternalServerError.Write(w)
	}
}

// postLoginRedirect resolves where the UI should land: a previously saved
// intended path wins if the new role may navigate there, otherwise the role's
// dashboard.
func (a *app) postLoginRedirect(r *http.Request) string {
	ctx := r.Context()

	dashboard, err := a.sessions.RoleDashboard(ctx)
	if err != nil {
		dashboard = "/dashboard"
	}

	intended := a.sessions.ConsumeIntendedPath(ctx)
	if intended == "" {
		return dashboard
	}
	rl, ok := role.ByID(a.sessions.CurrentRole(ctx))
	if !ok || !rl.AllowsPath(strings.SplitN(intended, "?", 2)[0]) {
		return dashboard
	}
	return intended
}

func (a *app) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Logout(r.Context(), session.ReasonUserLogout); err != nil {
		a.log.Warn("logout reported an error", logger.Error(err))
	}
	a.cookies.Delete(w, a.cookieName)
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{
		Info:     a.sessions.SessionInfo(r.Context()),
		MockData: a.mockData,
	})
}

func (a *app) handleActivity(w http.ResponseWriter, r *http.Request) {
	a.monitor.Activity(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleExtend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := a.monitor.Extend(ctx); err != nil {
		switch {
		case errors.Is(err, session.ErrNotAuthenticated):
			httperr.ErrUnauthorized.WithMessage("No active session to extend").Write(w)
		default:
			httperr.ErrServiceUnavailable.WithMessage("Could not confirm the extension with the backend").Write(w)
		}
		return
	}
	writeJSON(w, http.StatusOK, a.sessions.SessionInfo(ctx))
}

func (a *app) handleDismissWarning(w http.ResponseWriter, r *http.Request) {
	a.monitor.DismissWarning()
	w.WriteHeader(http.StatusNoContent)
}

// handleOnline lets the UI report browser connectivity so extensions pick the
// online or offline path.
func (a *app) handleOnline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.ErrBadRequest.WithMessage("request body must be valid JSON").Write(w)
		return
	}
	a.monitor.SetOnline(req.Online)
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams monitor notifications as server-sent events. The write
// deadline is cleared because the stream outlives the server write timeout.
func (a *app) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httperr.ErrInternalServerError.WithMessage("streaming unsupported").Write(w)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		a.log.Debug("could not clear write deadline for event stream", logger.Error(err))
	}

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-a.monitor.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

// handleSection answers guarded navigation probes with the section name and
// the capabilities the current role holds there. The actual fleet data always
// comes through the API proxy.
func (a *app) handleSection(name string, capabilities ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		granted := make([]string, 0, len(capabilities))
		for _, c := range capabilities {
			if a.sessions.HasPermission(ctx, c) {
				granted = append(granted, c)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"section":      name,
			"capabilities": granted,
		})
	}
}

func (a *app) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
