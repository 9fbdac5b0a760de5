package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ferdifleet/console/core/apiclient"
	"github.com/ferdifleet/console/core/role"
)

// Reason explains why a session was terminated. Recorded in logs on every
// logout path.
type Reason string

const (
	ReasonUserLogout   Reason = "user_logout"
	ReasonTimeout      Reason = "session_timeout"
	ReasonUnauthorized Reason = "unauthorized"
)

// Config holds session lifecycle settings.
type Config struct {
	// Duration is the idle window from the last tracked activity.
	Duration time.Duration `env:"SESSION_DURATION" envDefault:"8h"`
	// CheckFreshness is how long a successful backend token check stays fresh;
	// CheckAuth short-circuits inside this window unless forced.
	CheckFreshness time.Duration `env:"SESSION_CHECK_FRESHNESS" envDefault:"60s"`
}

// Info is a derived read of the session for UI display.
type Info struct {
	Authenticated bool          `json:"authenticated"`
	User          User          `json:"user,omitzero"`
	Company       Company       `json:"company,omitzero"`
	Remaining     time.Duration `json:"remaining_ms"`
	ExpiresAt     time.Time     `json:"expires_at,omitzero"`
}

// Manager is the single source of truth for authentication state. It keeps
// the authoritative session copy in memory, guarded by one mutex, and writes
// through to the Store for restart durability. Store failures are logged and
// never block a state transition: logout in particular must succeed with the
// backend and the store both unreachable.
//
// State machine: ANONYMOUS -> (login success) -> AUTHENTICATED ->
// (logout | expiry | 401) -> ANONYMOUS. Protected operations in ANONYMOUS
// state fail fast with ErrNotAuthenticated and never touch the network.
type Manager struct {
	store    Store
	api      *apiclient.Client
	duration time.Duration
	fresh    time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.Mutex
	cur           Session
	lastCheck     time.Time
	loginInFlight bool
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// WithDuration overrides the session idle window.
func WithDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.duration = d
		}
	}
}

// WithCheckFreshness overrides how long a backend token check stays fresh.
func WithCheckFreshness(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.fresh = d
		}
	}
}

// WithClock injects a time source. Tests use it to drive the expiry window.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a session manager backed by the given store and backend
// client.
func NewManager(store Store, api *apiclient.Client, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		api:      api,
		duration: DefaultDuration,
		fresh:    time.Minute,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerFromConfig creates a session manager from configuration.
func NewManagerFromConfig(cfg Config, store Store, api *apiclient.Client, opts ...Option) *Manager {
	base := []Option{WithDuration(cfg.Duration), WithCheckFreshness(cfg.CheckFreshness)}
	return NewManager(store, api, append(base, opts...)...)
}

// Restore loads a persisted session from the store at startup. Expired or
// corrupt records are discarded; path bookkeeping from an anonymous record is
// kept.
func (m *Manager) Restore(ctx context.Context) error {
	sess, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sess.IsAuthenticated() && !sess.IsValid(m.now()) {
		m.logger.Info("discarding expired persisted session", "reason", string(ReasonTimeout))
		m.cur = Session{IntendedPath: sess.IntendedPath}
		m.persist(ctx)
		return nil
	}

	m.cur = sess
	return nil
}

// Login exchanges credentials for a session. Concurrent attempts are
// serialized: a second call while one is outstanding is rejected with
// ErrLoginInProgress rather than producing interleaved partial state. On
// success the prior session is overwritten as a whole, with token, user,
// company, and both timestamps set in one critical section. On failure the
// current state is left untouched.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.mu.Lock()
	if m.loginInFlight {
		m.mu.Unlock()
		return ErrLoginInProgress
	}
	m.loginInFlight = true
	intended := m.cur.IntendedPath
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.loginInFlight = false
		m.mu.Unlock()
	}()

	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	usr, cmp, err := mapIdentity(res.User, res.Company)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The caller may have gone away while the request was in flight; a
	// cancelled login must not install a session.
	if err := ctx.Err(); err != nil {
		return err
	}

	now := m.now()
	m.cur = Session{
		Token:          res.AccessToken,
		User:           usr,
		Company:        cmp,
		IssuedAt:       now,
		LastActivityAt: now,
		Duration:       m.duration,
		IntendedPath:   intended,
	}
	m.lastCheck = now
	m.persist(ctx)

	m.logger.Info("session established",
		"user_id", usr.ID.String(), "role", string(usr.Role), "company", cmp.Code)
	return nil
}

// Logout clears the session unconditionally. It performs no network call, so
// it succeeds offline; the store clear is best-effort. Logout wins every race:
// once the in-memory copy is cleared, stale activity updates are no-ops.
// Calling Logout on an already-anonymous session is a silent no-op.
func (m *Manager) Logout(ctx context.Context, reason Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cur.IsAuthenticated() {
		return nil
	}

	userID := m.cur.User.ID
	m.cur = Session{}
	m.lastCheck = time.Time{}

	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("failed to clear persisted session", "error", err)
	}

	m.logger.Info("session cleared", "reason", string(reason), "user_id", userID.String())
	return nil
}

// CheckAuth validates the current token against the backend and silently
// refreshes user and company data. When the previous successful check is
// younger than the freshness window and force is false, it short-circuits
// without a network call. A backend 401 clears the session; transient errors
// leave it untouched and are returned to the caller.
func (m *Manager) CheckAuth(ctx context.Context, force bool) (bool, error) {
	m.mu.Lock()
	now := m.now()
	if !m.cur.IsValid(now) {
		m.mu.Unlock()
		return false, nil
	}
	if !force && now.Sub(m.lastCheck) < m.fresh {
		m.mu.Unlock()
		return true, nil
	}
	token := m.cur.Token
	m.mu.Unlock()

	me, err := m.api.Me(ctx, token)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			_ = m.Logout(ctx, ReasonUnauthorized)
			return false, nil
		}
		return false, err
	}

	usr, cmp, err := mapIdentity(me.User, me.Company)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	// The session may have been cleared or replaced while the check was in
	// flight; never resurrect it with stale data.
	if m.cur.Token != token {
		return m.cur.IsValid(m.now()), nil
	}

	m.cur.User = usr
	m.cur.Company = cmp
	m.lastCheck = m.now()
	m.persist(ctx)
	return true, nil
}

// UpdateActivity advances the last-activity timestamp. Callers throttle the
// call frequency, not the store. A cleared or expired session is never
// revived by a stale activity report.
func (m *Manager) UpdateActivity(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.cur.IsValid(now) {
		return ErrNotAuthenticated
	}
	m.cur.Touch(now)
	m.persist(ctx)
	return nil
}

// IsSessionValid reports whether a session exists and is inside its idle window.
func (m *Manager) IsSessionValid(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur.IsValid(m.now())
}

// ExtendSession renews the session after backend confirmation: the token is
// re-validated with a forced CheckAuth, and only on success is the idle window
// reset. A failed confirmation leaves the session in its prior state.
func (m *Manager) ExtendSession(ctx context.Context) error {
	ok, err := m.CheckAuth(ctx, true)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthenticated
	}
	return m.ExtendLocal(ctx)
}

// ExtendLocal resets the idle window without contacting the backend. This is
// the offline fallback for the interactive "extend" action.
func (m *Manager) ExtendLocal(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.cur.IsValid(now) {
		return ErrNotAuthenticated
	}
	m.cur.Extend(now)
	m.persist(ctx)
	return nil
}

// SessionInfo returns a derived read of the session for UI display.
// Authenticated remains true for an expired-but-not-yet-cleared session so the
// monitor can distinguish "expired, needs logout" from "already anonymous".
func (m *Manager) SessionInfo(ctx context.Context) Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cur.IsAuthenticated() {
		return Info{}
	}
	return Info{
		Authenticated: true,
		User:          m.cur.User,
		Company:       m.cur.Company,
		Remaining:     m.cur.Remaining(m.now()),
		ExpiresAt:     m.cur.ExpiresAt(),
	}
}

// Token returns the current bearer token, empty when anonymous.
func (m *Manager) Token(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cur.IsValid(m.now()) {
		return ""
	}
	return m.cur.Token
}

// CurrentRole returns the session user's role identifier, empty when anonymous.
func (m *Manager) CurrentRole(ctx context.Context) role.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cur.IsAuthenticated() {
		return ""
	}
	return m.cur.User.Role
}

// RoleDashboard maps the current user's role to its landing route.
func (m *Manager) RoleDashboard(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cur.IsValid(m.now()) {
		return "", ErrNotAuthenticated
	}
	r, ok := role.ByID(m.cur.User.Role)
	if !ok {
		return "", ErrUnknownRole
	}
	return r.Dashboard, nil
}

// HasPermission reports whether the current role grants the named capability.
// UI gating only; the backend authorizes every call on its own.
func (m *Manager) HasPermission(ctx context.Context, capability string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cur.IsValid(m.now()) {
		return false
	}
	return m.cur.Role().Can(capability)
}

// SaveCurrentPath records a visited path in the navigation history.
func (m *Manager) SaveCurrentPath(ctx context.Context, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur.PushPath(path)
	m.persist(ctx)
}

// SaveIntendedPath records the path to navigate to after the next login.
// Works in the anonymous state; the route guard calls it before redirecting.
func (m *Manager) SaveIntendedPath(ctx context.Context, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur.IntendedPath = path
	m.persist(ctx)
}

// ConsumeIntendedPath returns the saved intended path and clears it, so the
// post-login redirect happens exactly once.
func (m *Manager) ConsumeIntendedPath(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.cur.IntendedPath
	if path != "" {
		m.cur.IntendedPath = ""
		m.persist(ctx)
	}
	return path
}

// NavHistory returns a copy of the navigation history, most recent first.
func (m *Manager) NavHistory(ctx context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.cur.NavHistory))
	copy(out, m.cur.NavHistory)
	return out
}

// persist writes the current session through to the store. Callers hold m.mu.
// Store errors degrade durability only, so they are logged and swallowed.
func (m *Manager) persist(ctx context.Context) {
	if err := m.store.Save(context.WithoutCancel(ctx), m.cur); err != nil {
		m.logger.Warn("failed to persist session", "error", err)
	}
}

// mapIdentity converts backend wire identity into session domain types.
func mapIdentity(wu apiclient.User, wc apiclient.Company) (User, Company, error) {
	userID, err := uuid.Parse(wu.ID)
	if err != nil {
		return User{}, Company{}, errors.Join(ErrInvalidIdentity, err)
	}
	companyID, err := uuid.Parse(wc.ID)
	if err != nil {
		return User{}, Company{}, errors.Join(ErrInvalidIdentity, err)
	}

	var companyRef uuid.UUID
	if wu.CompanyID != "" {
		companyRef, err = uuid.Parse(wu.CompanyID)
		if err != nil {
			return User{}, Company{}, errors.Join(ErrInvalidIdentity, err)
		}
	}

	return User{
			ID:        userID,
			Email:     wu.Email,
			FirstName: wu.FirstName,
			LastName:  wu.LastName,
			Role:      role.ID(wu.Role),
			Active:    wu.Active,
			CompanyID: companyRef,
		}, Company{
			ID:   companyID,
			Name: wc.Name,
			Code: wc.Code,
		}, nil
}
