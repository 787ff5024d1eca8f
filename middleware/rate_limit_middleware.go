package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"display-rpc/message"
)

// keepAliveMethod never draws from the bucket; a busy client must still be
// able to prove its connection is alive.
const keepAliveMethod = "ping"

// RateLimitMiddleware shares one token bucket of r invocations per second,
// with the given burst, between all sessions of a server.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Reply {
			if inv.MethodName != keepAliveMethod && !limiter.Allow() {
				return &message.Reply{Error: fmt.Sprintf("%s: rate limit exceeded", inv.MethodName)}
			}
			return next(ctx, inv)
		}
	}
}
