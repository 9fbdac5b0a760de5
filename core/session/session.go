package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/ferdifleet/console/core/role"
)

const (
	// DefaultDuration is the idle window after which a session expires.
	DefaultDuration = 8 * time.Hour

	// MaxNavHistory caps the navigation history length.
	MaxNavHistory = 20
)

// User is the authenticated identity attached to a session.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      role.ID   `json:"role"`
	Active    bool      `json:"is_active"`
	CompanyID uuid.UUID `json:"company_id"`
}

// FullName returns the user's display name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Company is the tenant the session's user belongs to.
type Company struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Code string    `json:"company_code"`
}

// Session is the single client-side authentication state. Token and User are
// set and cleared together, never one without the other. Validity is purely a
// function of LastActivityAt and Duration: once the idle window has passed the
// session cannot be revived except by a fresh login.
//
// Navigation bookkeeping (NavHistory, CurrentPath, IntendedPath) lives on the
// session so it survives gateway restarts alongside the token. The path fields
// are also maintained for anonymous sessions; that is how the intended path
// recorded before login is available for the post-login redirect.
type Session struct {
	Token   string  `json:"token,omitempty"`
	User    User    `json:"user,omitzero"`
	Company Company `json:"company,omitzero"`

	IssuedAt       time.Time     `json:"issued_at,omitzero"`
	LastActivityAt time.Time     `json:"last_activity_at,omitzero"`
	Duration       time.Duration `json:"duration,omitempty"`

	// NavHistory holds visited paths, most recent first. Duplicates allowed.
	NavHistory   []string `json:"nav_history,omitempty"`
	CurrentPath  string   `json:"current_path,omitempty"`
	IntendedPath string   `json:"intended_path,omitempty"`
}

// IsAuthenticated reports whether the session carries an identity.
func (s Session) IsAuthenticated() bool {
	return s.Token != "" && s.User.ID != uuid.Nil
}

// IsValid reports whether the session is authenticated and inside its idle
// window at the given instant.
func (s Session) IsValid(now time.Time) bool {
	return s.IsAuthenticated() && now.Sub(s.LastActivityAt) < s.Duration
}

// Remaining returns the time left in the idle window. Zero or negative means
// expired.
func (s Session) Remaining(now time.Time) time.Duration {
	if !s.IsAuthenticated() {
		return 0
	}
	return s.LastActivityAt.Add(s.Duration).Sub(now)
}

// ExpiresAt returns the instant the idle window closes.
func (s Session) ExpiresAt() time.Time {
	return s.LastActivityAt.Add(s.Duration)
}

// Touch advances LastActivityAt. It never moves the timestamp backward, so
// out-of-order activity reports cannot shrink the window.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivityAt) {
		s.LastActivityAt = now
	}
}

// Extend resets the idle window fully. Semantically distinct from Touch: it is
// the result of an explicit, confirmed renewal rather than passive activity.
func (s *Session) Extend(now time.Time) {
	s.Touch(now)
}

// Role resolves the user's role against the static role table. Unknown
// identifiers return the zero Role, which grants nothing.
func (s Session) Role() role.Role {
	r, _ := role.ByID(s.User.Role)
	return r
}

// PushPath records a visited path at the front of the navigation history and
// sets CurrentPath. History is capped at MaxNavHistory entries.
func (s *Session) PushPath(path string) {
	if path == "" {
		return
	}
	s.CurrentPath = path
	s.NavHistory = append([]string{path}, s.NavHistory...)
	if len(s.NavHistory) > MaxNavHistory {
		s.NavHistory = s.NavHistory[:MaxNavHistory]
	}
}
