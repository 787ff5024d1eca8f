package client

import (
	"errors"
	"fmt"
)

// ErrDisconnected completes every call that was still pending when the channel
// lost its connection, and is returned by Call once the channel is down.
var ErrDisconnected = errors.New("client: disconnected")

// ServerError carries the error text a server returned for one call.
type ServerError struct {
	ID      uint64
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}
