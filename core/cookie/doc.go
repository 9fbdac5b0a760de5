// Package cookie provides HMAC-signed cookie handling with key rotation.
// The gateway uses it to mirror the session token to the browser: set on
// login, verified on every request, cleared on logout.
package cookie
