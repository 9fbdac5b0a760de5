package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is returned when no response was received from the backend.
	// Transient and retryable; callers must not clear session state on it.
	ErrNetwork = errors.New("backend unreachable")

	// ErrServer is returned for 5xx responses. Transient and retryable.
	ErrServer = errors.New("backend server error")

	// ErrUnauthorized is returned for 401 responses on authenticated calls.
	// Non-retryable without fresh credentials; triggers the forced-logout path.
	ErrUnauthorized = errors.New("authentication required")

	// ErrInvalidCredentials is returned when the token endpoint rejects a login.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrDecodeResponse is returned when a backend response body cannot be decoded.
	ErrDecodeResponse = errors.New("failed to decode backend response")
)

// APIError carries a non-2xx backend response that does not map to one of the
// sentinel errors above (client errors such as 404 or 422).
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}
