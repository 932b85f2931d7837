package logger

import (
	"context"

	"go.uber.org/zap"
)

type requestIDKey struct{}

// WithRequestID tags ctx with the id shared by both services for one
// customer flow. Outbound signed calls copy it into X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromCtx returns the global logger, annotated with request_id when ctx has one.
func FromCtx(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if id := RequestIDFrom(ctx); id != "" {
		return L().With(zap.String("request_id", id))
	}
	return L()
}
