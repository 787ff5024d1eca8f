// Package middleware wraps the server's invocation handler.
package middleware

import (
	"context"

	"display-rpc/message"
)

// HandlerFunc handles one invocation and returns its reply.
type HandlerFunc func(ctx context.Context, inv *message.Invocation) *message.Reply

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one; the first runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
