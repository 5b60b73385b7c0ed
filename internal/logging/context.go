// Package logging builds the process logger and carries request loggers
// through a context.
package logging

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// ContextWithLogger returns ctx carrying logger. A nil logger leaves ctx as is.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	logger, _ := ctx.Value(loggerKey{}).(*slog.Logger)
	return logger
}

// With adds attributes to the logger carried by ctx. Contexts without a
// logger are returned unchanged.
func With(ctx context.Context, args ...any) context.Context {
	logger := FromContext(ctx)
	if logger == nil {
		return ctx
	}
	return ContextWithLogger(ctx, logger.With(args...))
}
