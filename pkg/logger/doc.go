// Package logger provides slog construction helpers and common log attributes
// used across the console gateway.
package logger
