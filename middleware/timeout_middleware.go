package middleware

import (
	"context"
	"fmt"
	"time"

	"display-rpc/message"
)

// TimeoutMiddleware bounds how long a client waits for any one method. A
// handler that overruns gets its context cancelled and the client an error
// naming the method; whatever it returns later is dropped. A non-positive
// timeout disables the bound.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, inv *message.Invocation) *message.Reply {
			ctx, cancel := context.WithTimeoutCause(ctx, timeout,
				fmt.Errorf("%s exceeded %v", inv.MethodName, timeout))
			defer cancel()

			replies := make(chan *message.Reply, 1)
			go func() { replies <- next(ctx, inv) }()

			select {
			case reply := <-replies:
				return reply
			case <-ctx.Done():
				return &message.Reply{Error: context.Cause(ctx).Error()}
			}
		}
	}
}
