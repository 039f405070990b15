package logging

import (
	"context"
	"log/slog"
	"strings"
)

type cycleIDKey struct{}

// WithCycleID tags ctx with the identifier of the running capture cycle.
func WithCycleID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, cycleIDKey{}, id)
}

// CycleIDFromContext returns the cycle identifier stored by WithCycleID.
func CycleIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(cycleIDKey{}).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if id, ok := CycleIDFromContext(ctx); ok {
		return []slog.Attr{slog.String(FieldCycleID, id)}
	}
	return nil
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
