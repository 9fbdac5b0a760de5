package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ferdifleet/console/core/session"
)

// EventType identifies a session lifecycle notification.
type EventType string

const (
	// EventWarning fires once when remaining time first crosses the warning
	// threshold.
	EventWarning EventType = "expiry_warning"
	// EventExtended fires when the session was renewed, either explicitly or
	// silently through activity while a warning was showing.
	EventExtended EventType = "session_extended"
	// EventOfflineExtended fires when the session was extended locally because
	// the gateway is offline.
	EventOfflineExtended EventType = "offline_extended"
	// EventExtendFailed fires when an explicit extension could not be
	// confirmed by the backend. The session keeps its prior state.
	EventExtendFailed EventType = "extend_failed"
	// EventTimedOut fires after the monitor forced a session_timeout logout.
	EventTimedOut EventType = "session_timeout"
)

// Event is delivered to the UI over the events channel.
type Event struct {
	Type      EventType     `json:"type"`
	Remaining time.Duration `json:"remaining_ms"`
	At        time.Time     `json:"at"`
}

// Sessions is the slice of the session manager the monitor drives.
type Sessions interface {
	SessionInfo(ctx context.Context) session.Info
	UpdateActivity(ctx context.Context) error
	ExtendSession(ctx context.Context) error
	ExtendLocal(ctx context.Context) error
	Logout(ctx context.Context, reason session.Reason) error
}

// warning one-shot states. The warning re-arms only when remaining time moves
// back above the threshold, so a dismissed warning cannot re-fire while still
// under it.
const (
	warnArmed = iota
	warnFired
	warnDismissed
)

// Config holds monitor settings.
type Config struct {
	// Interval between validity checks.
	Interval time.Duration `env:"MONITOR_INTERVAL" envDefault:"30s"`
	// WarnBefore is the remaining-time threshold for the expiry warning.
	WarnBefore time.Duration `env:"MONITOR_WARN_BEFORE" envDefault:"5m"`
	// ActivityThrottle coalesces activity reports into at most one
	// UpdateActivity call per window.
	ActivityThrottle time.Duration `env:"MONITOR_ACTIVITY_THROTTLE" envDefault:"30s"`
}

// Monitor enforces the session expiry policy in the background. It is the
// only component that forces a session_timeout logout, and it does so exactly
// once per expiry. UI-facing notifications are delivered on a buffered events
// channel; a slow or absent consumer drops events rather than blocking the
// tick loop.
type Monitor struct {
	sessions Sessions
	interval time.Duration
	warn     time.Duration
	throttle time.Duration
	logger   *slog.Logger
	now      func() time.Time

	events chan Event

	mu          sync.Mutex
	warnState   int
	lastForward time.Time
	online      bool
}

// Option configures the Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Monitor) {
		if log != nil {
			m.logger = log
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithEventBuffer sets the events channel capacity.
func WithEventBuffer(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.events = make(chan Event, n)
		}
	}
}

// New creates a monitor over the given session manager.
func New(cfg Config, sessions Sessions, opts ...Option) *Monitor {
	m := &Monitor{
		sessions: sessions,
		interval: cfg.Interval,
		warn:     cfg.WarnBefore,
		throttle: cfg.ActivityThrottle,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		events:   make(chan Event, 16),
		online:   true,
	}
	if m.interval <= 0 {
		m.interval = 30 * time.Second
	}
	if m.warn <= 0 {
		m.warn = 5 * time.Minute
	}
	if m.throttle <= 0 {
		m.throttle = 30 * time.Second
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events returns the notification channel. One consumer is expected.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Run drives the periodic validity check until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one validity check. Exported so the run loop and tests share
// the exact same code path.
func (m *Monitor) Tick(ctx context.Context) {
	info := m.sessions.SessionInfo(ctx)
	if !info.Authenticated {
		m.mu.Lock()
		m.warnState = warnArmed
		m.mu.Unlock()
		return
	}

	if info.Remaining <= 0 {
		// The only place a session_timeout logout originates. After the
		// session is cleared the next tick sees an anonymous session, so the
		// logout fires exactly once per expiry.
		if err := m.sessions.Logout(ctx, session.ReasonTimeout); err != nil {
			m.logger.Error("failed to clear expired session", "error", err)
			return
		}
		m.mu.Lock()
		m.warnState = warnArmed
		m.mu.Unlock()
		m.emit(Event{Type: EventTimedOut, Remaining: 0, At: m.now()})
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if info.Remaining > m.warn {
		m.warnState = warnArmed
		return
	}
	if m.warnState == warnArmed {
		m.warnState = warnFired
		m.emit(Event{Type: EventWarning, Remaining: info.Remaining, At: m.now()})
	}
}

// Activity reports user activity. Calls are coalesced to at most one
// UpdateActivity per throttle window. Activity while a warning is showing
// dismisses it and notifies the UI that the session was silently extended.
func (m *Monitor) Activity(ctx context.Context) {
	m.mu.Lock()
	now := m.now()
	if now.Sub(m.lastForward) < m.throttle {
		m.mu.Unlock()
		return
	}
	m.lastForward = now
	wasWarning := m.warnState == warnFired
	m.mu.Unlock()

	if err := m.sessions.UpdateActivity(ctx); err != nil {
		// Anonymous or expired; the tick loop handles the logout.
		return
	}

	if wasWarning {
		m.mu.Lock()
		m.warnState = warnDismissed
		m.mu.Unlock()
		m.emit(Event{Type: EventExtended, Remaining: m.sessions.SessionInfo(ctx).Remaining, At: m.now()})
	}
}

// Extend performs the interactive "extend" action. Online, the extension is
// committed only after the backend confirms the token; offline, the window is
// reset locally without a network call. A failed confirmation leaves the
// session untouched and is reported, never treated as a logout.
func (m *Monitor) Extend(ctx context.Context) error {
	if !m.Online() {
		if err := m.sessions.ExtendLocal(ctx); err != nil {
			return err
		}
		m.rearm()
		m.emit(Event{Type: EventOfflineExtended, Remaining: m.sessions.SessionInfo(ctx).Remaining, At: m.now()})
		return nil
	}

	if err := m.sessions.ExtendSession(ctx); err != nil {
		m.emit(Event{Type: EventExtendFailed, Remaining: m.sessions.SessionInfo(ctx).Remaining, At: m.now()})
		return err
	}
	m.rearm()
	m.emit(Event{Type: EventExtended, Remaining: m.sessions.SessionInfo(ctx).Remaining, At: m.now()})
	return nil
}

// DismissWarning acknowledges the current warning without extending. The
// warning re-arms for the next threshold crossing, not before.
func (m *Monitor) DismissWarning() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warnState == warnFired {
		m.warnState = warnDismissed
	}
}

// SetOnline tracks connectivity transitions reported by the UI.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online != online {
		m.logger.Info("connectivity changed", "online", online)
	}
	m.online = online
}

// Online reports the last known connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) rearm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnState = warnArmed
}

// emit delivers an event without ever blocking the caller.
func (m *Monitor) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("dropping session event, no consumer", "type", string(ev.Type))
	}
}
