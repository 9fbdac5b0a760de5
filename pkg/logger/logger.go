package logger

import (
	"io"
	"log/slog"
	"os"
)

type options struct {
	output  io.Writer
	level   slog.Level
	json    bool
	appName string
}

// Option configures the logger constructor.
type Option func(*options)

// WithLevel sets the minimum log level.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithJSON switches the handler to JSON output, suitable for log aggregation.
func WithJSON() Option {
	return func(o *options) {
		o.json = true
	}
}

// WithOutput redirects log output. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithDevelopment enables human-readable text output at debug level
// and tags every record with the application name.
func WithDevelopment(appName string) Option {
	return func(o *options) {
		o.json = false
		o.level = slog.LevelDebug
		o.appName = appName
	}
}

// WithAppName tags every record with the application name.
func WithAppName(appName string) Option {
	return func(o *options) {
		o.appName = appName
	}
}

// New builds a slog.Logger from the provided options.
func New(opts ...Option) *slog.Logger {
	o := options{
		output: os.Stdout,
		level:  slog.LevelInfo,
		json:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{Level: o.level}

	var h slog.Handler
	if o.json {
		h = slog.NewJSONHandler(o.output, handlerOpts)
	} else {
		h = slog.NewTextHandler(o.output, handlerOpts)
	}

	log := slog.New(h)
	if o.appName != "" {
		log = log.With(slog.String("app", o.appName))
	}
	return log
}

// Discard returns a logger that drops every record. Useful as a default
// for components that accept an optional logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
