package client

import (
	"sync/atomic"

	"display-rpc/message"
)

// InvocationBuilder stamps outgoing invocations with channel-unique ids.
// The zero value is ready to use; the first id is 0.
type InvocationBuilder struct {
	next atomic.Uint64
}

// NextID returns the next id and advances the counter. Wraparound is not
// guarded against.
func (b *InvocationBuilder) NextID() uint64 {
	return b.next.Add(1) - 1
}

// Build returns a fresh invocation for method with already-encoded parameters.
func (b *InvocationBuilder) Build(method string, params []byte) *message.Invocation {
	return &message.Invocation{
		ID:              b.NextID(),
		MethodName:      method,
		Parameters:      params,
		ProtocolVersion: message.ProtocolVersion,
	}
}
