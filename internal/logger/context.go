package logger

import (
	"context"

	"go.uber.org/zap"
)

type requestKey struct{}

type requestScope struct {
	id     string
	logger *zap.Logger
}

// WithRequest binds a request-scoped logger tagged with request_id to ctx.
func WithRequest(ctx context.Context, base *zap.Logger, requestID string) context.Context {
	l := base
	if requestID != "" {
		l = base.With(zap.String("request_id", requestID))
	}
	return context.WithValue(ctx, requestKey{}, requestScope{id: requestID, logger: l})
}

// FromContext returns the request logger, or a no-op logger outside a request.
func FromContext(ctx context.Context) *zap.Logger {
	if rs, ok := ctx.Value(requestKey{}).(requestScope); ok {
		return rs.logger
	}
	return zap.NewNop()
}

// ForUser returns the request logger tagged with the learner id.
func ForUser(ctx context.Context, userID string) *zap.Logger {
	l := FromContext(ctx)
	if userID == "" {
		return l
	}
	return l.With(zap.String("user_id", userID))
}

// RequestID returns the id bound by WithRequest.
func RequestID(ctx context.Context) string {
	rs, _ := ctx.Value(requestKey{}).(requestScope)
	return rs.id
}
