// Package transport provides the byte stream a display-server channel runs on.
//
// A Transport is a local duplex stream plus a side channel for passing file
// descriptors. Exactly one goroutine reads (the channel's reader loop); writes
// may come from many goroutines and must be serialized by the caller so frames
// do not interleave.
package transport

import (
	"errors"
	"io"
	"time"
)

// DefaultDescriptorTimeout bounds how long a reply waits for descriptors that
// its body announced. The kernel may deliver the announcing bytes and the
// descriptor message as separate events.
const DefaultDescriptorTimeout = 200 * time.Millisecond

// ErrDescriptorTimeout is returned by ReceiveFDs when the descriptors did not
// arrive in time. It fails one reply, not the connection.
var ErrDescriptorTimeout = errors.New("transport: timed out waiting for descriptors")

// Transport is the stream a channel reads frames from and writes frames to.
type Transport interface {
	io.Reader
	io.Writer

	// SendFDs passes descriptors on the side channel as one message.
	SendFDs(fds []int) error

	// ReceiveFDs pulls exactly n descriptors from the side channel, in the
	// order they were sent.
	ReceiveFDs(n int, timeout time.Duration) ([]int, error)

	// CloseWrite shuts down the sending side only.
	CloseWrite() error

	Close() error
}
