// Package apiclient wraps outbound requests to the fleet backend. It attaches
// the bearer token, speaks JSON (form-urlencoded for the token endpoint only),
// and classifies every failure once at this boundary: ErrNetwork for transport
// failures, ErrUnauthorized for 401s, ErrServer for 5xx. Downstream code
// branches on these tags and never inspects transport details.
package apiclient
