package middleware

import (
	"context"
	"net/http"
	"slices"

	"github.com/ferdifleet/console/core/httperr"
	"github.com/ferdifleet/console/core/role"
)

// GuardSessions is the narrow session surface the route guard needs.
// *session.Manager satisfies it.
type GuardSessions interface {
	IsSessionValid(ctx context.Context) bool
	CurrentRole(ctx context.Context) role.ID
	SaveIntendedPath(ctx context.Context, path string)
	SaveCurrentPath(ctx context.Context, path string)
}

// GuardConfig configures the route guard middleware.
type GuardConfig struct {
	// Sessions provides the session state the guard checks against. Required.
	Sessions GuardSessions

	// AllowedRoles lists the role IDs permitted past the guard. Membership is
	// checked by exact ID. An empty list admits any authenticated role.
	AllowedRoles []role.ID

	// AllowPathsByRole consults the role table's navigation prefixes instead
	// of a fixed allow list: the request passes only when the current role's
	// AllowsPath admits the request path. Takes precedence over AllowedRoles.
	AllowPathsByRole bool

	// LoginPath is where unauthenticated requests are redirected (default: "/login").
	LoginPath string

	// ForbiddenRedirect, when set, redirects role-mismatched requests to this
	// path instead of responding 403.
	ForbiddenRedirect string

	// Skip defines a function to skip guard checks for specific requests
	Skip func(r *http.Request) bool
}

// Guard creates a route guard middleware. Requests without a valid session are
// redirected to the login path before any protected handler runs, with the
// requested path recorded for post-login redirect. Authenticated requests whose
// role is not in the allow list get a 403 response (or the configured redirect).
// Requests that pass have their path recorded as the current location.
func Guard(cfg GuardConfig) func(http.Handler) http.Handler {
	if cfg.Sessions == nil {
		panic("middleware: guard requires a session source")
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			if !cfg.Sessions.IsSessionValid(ctx) {
				cfg.Sessions.SaveIntendedPath(ctx, requestedPath(r))
				http.Redirect(w, r, cfg.LoginPath, http.StatusFound)
				return
			}

			current := cfg.Sessions.CurrentRole(ctx)
			var allowed bool
			switch {
			case cfg.AllowPathsByRole:
				rl, ok := role.ByID(current)
				allowed = ok && rl.AllowsPath(r.URL.Path)
			case len(cfg.AllowedRoles) > 0:
				allowed = slices.Contains(cfg.AllowedRoles, current)
			default:
				allowed = true
			}
			if !allowed {
				if cfg.ForbiddenRedirect != "" {
					http.Redirect(w, r, cfg.ForbiddenRedirect, http.StatusFound)
					return
				}
				httperr.ErrForbidden.WithMessage("Your role does not grant access to this section").Write(w)
				return
			}

			cfg.Sessions.SaveCurrentPath(ctx, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// requestedPath preserves the query string so the post-login redirect lands on
// the exact page the user asked for.
func requestedPath(r *http.Request) string {
	if r.URL.RawQuery != "" {
		return r.URL.Path + "?" + r.URL.RawQuery
	}
	return r.URL.Path
}
