// Package session owns the console's authentication state: the bearer token,
// the authenticated user and company, activity-based expiry, and navigation
// bookkeeping. The Manager is the single source of truth; every mutation is
// serialized through it, and the Store interface adds optional persistence
// across gateway restarts (in-memory by default, Redis when configured).
package session
