package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferdifleet/console/core/apiclient"
	"github.com/ferdifleet/console/core/role"
	"github.com/ferdifleet/console/core/session"
)

const (
	testUserID    = "7f9c24e5-1b1f-4c93-9f0c-111111111111"
	testCompanyID = "7f9c24e5-1b1f-4c93-9f0c-222222222222"
)

// fakeClock is a thread-safe manual time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testBackend is a minimal fleet backend with a token and a me endpoint.
type testBackend struct {
	srv        *httptest.Server
	meCalls    atomic.Int64
	loginCalls atomic.Int64
	failLogin  atomic.Bool
	rejectMe   atomic.Bool
	meStatus   atomic.Int64 // overrides rejectMe when non-zero
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()

	b := &testBackend{}
	identity := map[string]any{
		"user": map[string]any{
			"id": testUserID, "email": "ops@ferdi.example",
			"first_name": "Marie", "last_name": "Dubois",
			"role": "2", "is_active": true, "company_id": testCompanyID,
		},
		"company": map[string]any{
			"id": testCompanyID, "name": "Voyages Nord", "company_code": "VN-01",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		b.loginCalls.Add(1)
		if b.failLogin.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		payload := map[string]any{"access_token": "tok-123", "token_type": "bearer"}
		for k, v := range identity {
			payload[k] = v
		}
		_ = json.NewEncoder(w).Encode(payload)
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		b.meCalls.Add(1)
		if status := b.meStatus.Load(); status != 0 {
			w.WriteHeader(int(status))
			return
		}
		if b.rejectMe.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(identity)
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

type managerFixture struct {
	mgr     *session.Manager
	store   *session.MemoryStore
	clock   *fakeClock
	backend *testBackend
}

func newManagerFixture(t *testing.T, opts ...session.Option) *managerFixture {
	t.Helper()

	backend := newTestBackend(t)
	api, err := apiclient.New(apiclient.Config{
		BaseURL:   backend.srv.URL,
		TokenPath: "/api/v1/auth/token",
		MePath:    "/api/v1/auth/me",
	})
	require.NoError(t, err)

	clock := newFakeClock()
	store := session.NewMemoryStore()
	base := []session.Option{session.WithClock(clock.Now)}
	mgr := session.NewManager(store, api, append(base, opts...)...)

	return &managerFixture{mgr: mgr, store: store, clock: clock, backend: backend}
}

func (f *managerFixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.mgr.Login(context.Background(), "ops@ferdi.example", "secret"))
}

func TestManager_Login(t *testing.T) {
	t.Parallel()

	t.Run("success sets token and user atomically", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)

		ctx := context.Background()
		assert.True(t, f.mgr.IsSessionValid(ctx))
		assert.Equal(t, "tok-123", f.mgr.Token(ctx))
		assert.Equal(t, role.CompanyAdmin, f.mgr.CurrentRole(ctx))

		persisted, err := f.store.Load(ctx)
		require.NoError(t, err)
		assert.True(t, persisted.IsAuthenticated())
		assert.Equal(t, "Marie", persisted.User.FirstName)
		assert.Equal(t, persisted.IssuedAt, persisted.LastActivityAt)
	})

	t.Run("failure leaves no partial session", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.backend.failLogin.Store(true)

		ctx := context.Background()
		err := f.mgr.Login(ctx, "ops@ferdi.example", "wrong")
		require.ErrorIs(t, err, apiclient.ErrInvalidCredentials)

		assert.False(t, f.mgr.IsSessionValid(ctx))
		assert.Empty(t, f.mgr.Token(ctx))
		_, loadErr := f.store.Load(ctx)
		assert.ErrorIs(t, loadErr, session.ErrNotFound)
	})

	t.Run("new login overwrites prior session", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)

		ctx := context.Background()
		f.mgr.SaveCurrentPath(ctx, "/missions")
		f.login(t)

		assert.True(t, f.mgr.IsSessionValid(ctx))
		assert.Empty(t, f.mgr.NavHistory(ctx), "fresh login starts a fresh session")
	})

	t.Run("preserves intended path across login", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		ctx := context.Background()
		f.mgr.SaveIntendedPath(ctx, "/missions/42")
		f.login(t)

		assert.Equal(t, "/missions/42", f.mgr.ConsumeIntendedPath(ctx))
		assert.Empty(t, f.mgr.ConsumeIntendedPath(ctx), "intended path consumed exactly once")
	})

	t.Run("cancelled login does not install a session", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := f.mgr.Login(ctx, "ops@ferdi.example", "secret")
		require.Error(t, err)
		assert.False(t, f.mgr.IsSessionValid(context.Background()))
	})
}

func TestManager_Logout(t *testing.T) {
	t.Parallel()

	t.Run("clears everything", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)

		ctx := context.Background()
		require.NoError(t, f.mgr.Logout(ctx, session.ReasonUserLogout))

		assert.False(t, f.mgr.IsSessionValid(ctx))
		assert.Empty(t, f.mgr.Token(ctx))
		assert.Empty(t, f.mgr.CurrentRole(ctx))
		_, err := f.store.Load(ctx)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("succeeds with backend unreachable", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		f.backend.srv.Close() // simulated offline

		ctx := context.Background()
		require.NoError(t, f.mgr.Logout(ctx, session.ReasonUserLogout))
		assert.False(t, f.mgr.IsSessionValid(ctx))
	})

	t.Run("idempotent when anonymous", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		require.NoError(t, f.mgr.Logout(context.Background(), session.ReasonUserLogout))
	})
}

func TestManager_CheckAuth(t *testing.T) {
	t.Parallel()

	t.Run("anonymous short-circuits without network", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		ok, err := f.mgr.CheckAuth(context.Background(), true)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, f.backend.meCalls.Load())
	})

	t.Run("fresh check short-circuits unless forced", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t, session.WithCheckFreshness(time.Minute))
		f.login(t)
		ctx := context.Background()

		ok, err := f.mgr.CheckAuth(ctx, false)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, f.backend.meCalls.Load(), "login counts as a fresh check")

		ok, err = f.mgr.CheckAuth(ctx, true)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1), f.backend.meCalls.Load())

		f.clock.Advance(2 * time.Minute)
		ok, err = f.mgr.CheckAuth(ctx, false)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(2), f.backend.meCalls.Load())
	})

	t.Run("401 clears the session", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		f.backend.rejectMe.Store(true)
		ctx := context.Background()

		ok, err := f.mgr.CheckAuth(ctx, true)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, f.mgr.IsSessionValid(ctx))
	})

	t.Run("server error preserves the session", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		f.backend.meStatus.Store(http.StatusInternalServerError)
		ctx := context.Background()

		_, err := f.mgr.CheckAuth(ctx, true)
		require.ErrorIs(t, err, apiclient.ErrServer)
		assert.True(t, f.mgr.IsSessionValid(ctx))
	})
}

func TestManager_ActivityAndExpiry(t *testing.T) {
	t.Parallel()

	t.Run("activity inside the window keeps the session valid", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			f.clock.Advance(7 * time.Hour)
			require.NoError(t, f.mgr.UpdateActivity(ctx))
			assert.True(t, f.mgr.IsSessionValid(ctx))
		}
	})

	t.Run("idle past the window invalidates the session", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		ctx := context.Background()

		// Activity at t=4h59m, then silence until t=9h: 5h01m after the last
		// activity the session must be invalid.
		f.clock.Advance(4*time.Hour + 59*time.Minute)
		require.NoError(t, f.mgr.UpdateActivity(ctx))

		f.clock.Advance(4*time.Hour + 1*time.Minute)
		assert.False(t, f.mgr.IsSessionValid(ctx))
		assert.ErrorIs(t, f.mgr.UpdateActivity(ctx), session.ErrNotAuthenticated)
	})

	t.Run("expired session cannot be revived by activity", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		ctx := context.Background()

		f.clock.Advance(9 * time.Hour)
		assert.ErrorIs(t, f.mgr.UpdateActivity(ctx), session.ErrNotAuthenticated)
		assert.ErrorIs(t, f.mgr.ExtendLocal(ctx), session.ErrNotAuthenticated)
		assert.False(t, f.mgr.IsSessionValid(ctx))
	})

	t.Run("anonymous activity fails fast", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		assert.ErrorIs(t, f.mgr.UpdateActivity(context.Background()), session.ErrNotAuthenticated)
	})
}

func TestManager_Extend(t *testing.T) {
	t.Parallel()

	t.Run("extend resets the window after backend confirmation", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		ctx := context.Background()

		f.clock.Advance(6 * time.Hour)
		require.NoError(t, f.mgr.ExtendSession(ctx))
		assert.GreaterOrEqual(t, f.backend.meCalls.Load(), int64(1), "extend must confirm with the backend")

		info := f.mgr.SessionInfo(ctx)
		assert.Equal(t, session.DefaultDuration, info.Remaining)
	})

	t.Run("failed confirmation leaves prior state", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		ctx := context.Background()

		f.clock.Advance(6 * time.Hour)
		remainingBefore := f.mgr.SessionInfo(ctx).Remaining

		f.backend.meStatus.Store(http.StatusBadGateway)
		err := f.mgr.ExtendSession(ctx)
		require.ErrorIs(t, err, apiclient.ErrServer)

		assert.True(t, f.mgr.IsSessionValid(ctx), "failed extend is not a logout")
		assert.Equal(t, remainingBefore, f.mgr.SessionInfo(ctx).Remaining)
	})

	t.Run("local extend needs no backend", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		f.backend.srv.Close()
		ctx := context.Background()

		f.clock.Advance(6 * time.Hour)
		require.NoError(t, f.mgr.ExtendLocal(ctx))
		assert.Equal(t, session.DefaultDuration, f.mgr.SessionInfo(ctx).Remaining)
	})
}

func TestManager_SessionInfo(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)
	ctx := context.Background()

	assert.False(t, f.mgr.SessionInfo(ctx).Authenticated)

	f.login(t)
	f.clock.Advance(3 * time.Hour)

	info := f.mgr.SessionInfo(ctx)
	assert.True(t, info.Authenticated)
	assert.Equal(t, 5*time.Hour, info.Remaining)
	assert.Equal(t, "Voyages Nord", info.Company.Name)
}

func TestManager_RoleOperations(t *testing.T) {
	t.Parallel()

	t.Run("dashboard and permissions for company admin", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		ctx := context.Background()

		dashboard, err := f.mgr.RoleDashboard(ctx)
		require.NoError(t, err)
		assert.Equal(t, "/dashboard", dashboard)

		assert.True(t, f.mgr.HasPermission(ctx, role.CapUsersManage))
		assert.False(t, f.mgr.HasPermission(ctx, role.CapCompaniesManage))
	})

	t.Run("anonymous has no dashboard or permissions", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		ctx := context.Background()

		_, err := f.mgr.RoleDashboard(ctx)
		assert.ErrorIs(t, err, session.ErrNotAuthenticated)
		assert.False(t, f.mgr.HasPermission(ctx, role.CapUsersManage))
	})
}

func TestManager_Restore(t *testing.T) {
	t.Parallel()

	t.Run("restores a valid persisted session", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		ctx := context.Background()

		// A second manager over the same store simulates a gateway restart.
		restored := session.NewManager(f.store, nil, session.WithClock(f.clock.Now))
		require.NoError(t, restored.Restore(ctx))
		assert.True(t, restored.IsSessionValid(ctx))
		assert.Equal(t, "tok-123", restored.Token(ctx))
	})

	t.Run("discards an expired persisted session", func(t *testing.T) {
		t.Parallel()

		f := newManagerFixture(t)
		f.login(t)
		ctx := context.Background()

		f.clock.Advance(9 * time.Hour)
		restored := session.NewManager(f.store, nil, session.WithClock(f.clock.Now))
		require.NoError(t, restored.Restore(ctx))
		assert.False(t, restored.IsSessionValid(ctx))
	})

	t.Run("empty store is not an error", func(t *testing.T) {
		t.Parallel()

		mgr := session.NewManager(session.NewMemoryStore(), nil)
		require.NoError(t, mgr.Restore(context.Background()))
	})
}

func TestManager_ConcurrentLoginSerialized(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	var rejected atomic.Int64

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if err := f.mgr.Login(ctx, "ops@ferdi.example", "secret"); err != nil {
				assert.ErrorIs(t, err, session.ErrLoginInProgress)
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	// At least one attempt won, the session is whole, and no interleaved
	// partial state was produced.
	assert.True(t, f.mgr.IsSessionValid(ctx))
	assert.Less(t, rejected.Load(), int64(attempts))
}

func TestManager_LogoutWinsRace(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(t)
	ctx := context.Background()
	f.login(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = f.mgr.Logout(ctx, session.ReasonUserLogout)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = f.mgr.UpdateActivity(ctx)
		}
	}()
	wg.Wait()

	// Whatever the interleaving, once logout ran the session stays cleared.
	assert.False(t, f.mgr.IsSessionValid(ctx))
	assert.Empty(t, f.mgr.Token(ctx))
	assert.ErrorIs(t, f.mgr.UpdateActivity(ctx), session.ErrNotAuthenticated)
}
