// Package monitor enforces the session expiry policy: a periodic validity
// check, a one-shot warning before expiry, throttled activity intake, and
// connectivity-aware session extension. It is the only component allowed to
// force a session_timeout logout.
package monitor
