// Package client implements the client end of a display-server RPC channel.
//
// A Channel multiplexes many concurrent calls over one socket. Each call gets a
// channel-unique id and is registered in the pending-call cache before its frame
// is written; a single reader goroutine pulls every frame off the socket, hands
// pushed events to the observers and completes the call a reply answers.
//
//	goroutine-1 ──Call(id=0)──┐
//	goroutine-2 ──Call(id=1)──┼──→ socket ──→ display server
//	goroutine-3 ──Call(id=2)──┘
//
//	readLoop: ←── Result{id=1, events} → observers, then pending[1] → done(nil)
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"display-rpc/codec"
	"display-rpc/config"
	"display-rpc/message"
	"display-rpc/protocol"
	"display-rpc/report"
	"display-rpc/transport"
)

// PingMethod is the invocation the keepalive loop sends.
const PingMethod = "ping"

// Channel is a connected RPC channel to a display server.
type Channel struct {
	transport transport.Transport
	opts      options
	builder   InvocationBuilder
	pending   *PendingCallCache

	sending sync.Mutex // a frame is written with one Write, but Writes must not interleave

	connected      atomic.Bool
	closing        atomic.Bool
	disconnectOnce sync.Once
	disconnected   chan struct{}
	readDone       chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewChannel starts a channel on an established transport. The channel owns t
// from now on.
func NewChannel(t transport.Transport, opts ...Option) *Channel {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.report == nil {
		o.report = report.NewLoggingReport(o.log)
	}

	c := &Channel{
		transport:    t,
		opts:         o,
		pending:      NewPendingCallCache(o.codec, o.report),
		disconnected: make(chan struct{}),
		readDone:     make(chan struct{}),
	}
	c.connected.Store(true)

	go c.readLoop()
	if o.keepAlive > 0 {
		go c.keepAliveLoop(o.keepAlive)
	}
	return c
}

// Dial connects to the display server listening on socketPath.
func Dial(ctx context.Context, socketPath string, opts ...Option) (*Channel, error) {
	t, err := transport.Dial(ctx, socketPath)
	if err != nil {
		return nil, err
	}
	return NewChannel(t, opts...), nil
}

// DialConfig connects using cfg for the socket path, codec, descriptor timeout,
// keepalive and logger. opts are applied after and win.
func DialConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Channel, error) {
	cdc, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithCodec(cdc),
		WithLogger(log),
		WithDescriptorTimeout(cfg.FDTimeout),
		WithKeepAlive(cfg.KeepAlive),
	}
	return Dial(ctx, cfg.SocketPath(), append(base, opts...)...)
}

// FromFD opens a channel on a connected socket descriptor, typically one
// received in a codec.SocketFD reply.
func FromFD(fd int, opts ...Option) (*Channel, error) {
	t, err := transport.FromFD(fd)
	if err != nil {
		return nil, err
	}
	return NewChannel(t, opts...), nil
}

// Call sends method with params and returns as soon as the invocation is
// written. When the reply arrives it is decoded into dest and done runs on the
// reader goroutine; done must not wait for another reply on this channel.
//
// If Call fails before the invocation is registered, done never runs. If the
// write itself fails the channel disconnects, done runs with an error wrapping
// ErrDisconnected, and the write error is also returned.
func (c *Channel) Call(method string, params, dest any, done func(error)) error {
	if !c.connected.Load() {
		return ErrDisconnected
	}

	payload, err := c.opts.codec.Encode(params)
	if err != nil {
		return fmt.Errorf("client: encode %s parameters: %w", method, err)
	}
	inv := c.builder.Build(method, payload)
	frame, err := protocol.Frame(inv.Marshal())
	if err != nil {
		return fmt.Errorf("client: %s: %w", method, err)
	}

	if err := c.pending.Save(inv.ID, dest, done); err != nil {
		return err
	}

	c.sending.Lock()
	_, err = c.transport.Write(frame)
	c.sending.Unlock()
	if err != nil {
		err = fmt.Errorf("client: send %s: %w", method, err)
		c.opts.report.InvocationFailed(inv, err)
		c.disconnect(err)
		return err
	}
	c.opts.report.InvocationSucceeded(inv)
	return nil
}

// Invoke is Call that waits for the reply. ctx only bounds the wait: a reply
// arriving later is still decoded into dest.
func (c *Channel) Invoke(ctx context.Context, method string, params, dest any) error {
	done := make(chan error, 1)
	if err := c.Call(method, params, dest, func(err error) { done <- err }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether the channel can still send.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Disconnected is closed once the channel has lost its connection and every
// pending call has been completed.
func (c *Channel) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Close closes the transport and waits for the reader to exit. Calls still
// pending complete with ErrDisconnected. Close must not be called from a
// completion or observer.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.closeErr = c.transport.Close()
	})
	<-c.readDone
	return c.closeErr
}

// disconnect moves the channel to the disconnected state. Only the first call
// does anything; cause is reported when non-nil.
func (c *Channel) disconnect(cause error) {
	c.disconnectOnce.Do(func() {
		c.connected.Store(false)
		if cause != nil {
			c.opts.report.ConnectionFailure(cause)
		}
		if err := c.transport.CloseWrite(); err != nil {
			c.opts.log.Debug("close send side", zap.Error(err))
		}
		c.pending.ForceCompletion(cause)
		if c.opts.lifecycle != nil {
			c.opts.lifecycle.LifecycleChanged(message.LifecycleConnectionLost)
		}
		close(c.disconnected)
	})
}

// keepAliveLoop pings the server so an idle dead peer is noticed by the
// failing write.
func (c *Channel) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.disconnected:
			return
		case <-ticker.C:
			err := c.Call(PingMethod, nil, nil, func(err error) {
				if err != nil && !errors.Is(err, ErrDisconnected) {
					c.opts.log.Warn("keepalive failed", zap.Error(err))
				}
			})
			if err != nil {
				return
			}
		}
	}
}
