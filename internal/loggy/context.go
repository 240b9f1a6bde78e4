package loggy

import (
	"context"

	"github.com/tildaslashalef/mermaidnest/internal/ulid"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
)

// FromContext returns the logger stored in ctx, or the global logger
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*Logger); ok && logger != nil {
			return logger
		}
	}
	return GetGlobalLogger()
}

// WithLogger returns a new context carrying logger
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// GetRequestID returns the request ID stored in ctx, if any
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRequestID returns a context carrying id, with the context logger tagged as well
func WithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, requestIDKey, id)
	if logger := FromContext(ctx); logger != nil {
		ctx = WithLogger(ctx, logger.With("request_id", id))
	}
	return ctx
}

// NewRequestID generates a new request ID
func NewRequestID() string {
	return ulid.RequestID()
}
