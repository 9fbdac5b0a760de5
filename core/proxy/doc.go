// Package proxy forwards same-origin API calls from the browser UI to the
// fleet backend. It applies a fixed header allow-list, token injection,
// form re-encoding for the token endpoint, and verbatim status propagation.
package proxy
