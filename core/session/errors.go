package session

import "errors"

var (
	// ErrNotAuthenticated is returned when a protected operation is attempted
	// without a valid session. Callers must fail fast on it instead of trying
	// the network.
	ErrNotAuthenticated = errors.New("no authenticated session")

	// ErrLoginInProgress is returned when a login attempt starts while another
	// one is still outstanding.
	ErrLoginInProgress = errors.New("another login attempt is in progress")

	// ErrNotFound is returned by stores when no persisted session exists.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidIdentity is returned when the backend identity payload cannot
	// be mapped into a session (malformed IDs, missing fields).
	ErrInvalidIdentity = errors.New("invalid identity payload")

	// ErrUnknownRole is returned when the session user carries a role
	// identifier absent from the role table.
	ErrUnknownRole = errors.New("unknown role identifier")
)
