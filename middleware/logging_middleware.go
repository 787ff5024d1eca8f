package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"display-rpc/message"
)

// LoggingMiddleware logs every invocation with its duration, failures at warn level.
func LoggingMiddleware(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Reply {
			start := time.Now()
			reply := next(ctx, inv)
			fields := []zap.Field{
				zap.Uint64("id", inv.ID),
				zap.String("method", inv.MethodName),
				zap.Duration("duration", time.Since(start)),
			}
			if reply.Error != "" {
				log.Warn("invocation failed", append(fields, zap.String("error", reply.Error))...)
			} else {
				log.Debug("invocation handled", fields...)
			}
			return reply
		}
	}
}
