// Package logging defines the structured-logging interface used across the
// gateway. The production backend is zap; a slog backend is kept for tests
// and local text output.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "lease acquired", "credential_id", id, "user_id", uid)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// New builds the logger selected by format ("json" uses zap, "text" uses a
// slog text handler) at the given level.
func New(format, level string) (Logger, error) {
	if format == "text" {
		return NewTextSlogLogger(level), nil
	}
	return NewProductionZapLogger(level)
}
