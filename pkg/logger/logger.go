package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// New returns the process-wide JSON logger. Local and dev environments log
// at debug level; everything else at info.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

type ctxKey struct{}

// With attaches a logger to the context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the context logger, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ShutdownFlush exists so main can flush on shutdown if a buffered handler
// ever replaces the plain JSON one.
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
