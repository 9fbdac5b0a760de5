package logger

import (
	"log/slog"
	"time"
)

// Component tags a record with the emitting component name.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Error wraps an error as a log attribute. Returns an empty attribute for nil
// errors so it can be passed unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Duration records an operation duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Latency records request latency.
func Latency(d time.Duration) slog.Attr {
	return slog.Duration("latency", d)
}

// Group nests attributes under a common key.
func Group(key string, attrs ...slog.Attr) slog.Attr {
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	return slog.Group(key, args...)
}
