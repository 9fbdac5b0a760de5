// Package httperr defines the structured JSON error responses the gateway
// returns to the browser UI.
package httperr
