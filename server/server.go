// Package server implements the display-server side of the channel: it accepts
// clients on a Unix socket, dispatches their invocations to registered methods
// and sends back replies together with any descriptors they carry.
//
// Request processing pipeline:
//
//	Accept conn → ServeTransport (single goroutine reads frames)
//	  → for each invocation: go handleInvocation (parallel processing)
//	    → Middleware Chain → businessHandler (reflect.Call) → Codec.Encode
//	      → Result frame + side-channel descriptors, under the session write lock
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"display-rpc/codec"
	"display-rpc/message"
	"display-rpc/middleware"
	"display-rpc/protocol"
	"display-rpc/registry"
	"display-rpc/transport"
)

// PingMethod is answered by every server with an empty reply.
const PingMethod = "ping"

// registryTTL is the lease TTL in seconds; KeepAlive renews it.
const registryTTL = 10

type boundMethod struct {
	svc   *service
	mtype *methodType
}

// Server dispatches invocations from any number of client sessions.
type Server struct {
	name        string
	codec       codec.Codec
	log         *zap.Logger
	onSession   func(*Session)
	methods     map[string]boundMethod
	middlewares []middleware.Middleware

	handlerOnce sync.Once
	handler     middleware.HandlerFunc // middleware(middleware(...(businessHandler)))

	mu         sync.Mutex
	listener   net.Listener
	sessions   map[*Session]struct{}
	registry   registry.Registry // nil if not using discovery
	socketPath string            // path advertised in the registry

	wg       sync.WaitGroup // in-flight invocations, for graceful shutdown
	shutdown atomic.Bool    // suppresses the Accept error caused by Shutdown
}

type Option func(*Server)

func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// OnSession runs f for every new session before its first invocation is read,
// e.g. to keep it for pushing events.
func OnSession(f func(*Session)) Option {
	return func(s *Server) { s.onSession = f }
}

// NewServer creates a server advertised under name.
func NewServer(name string, opts ...Option) *Server {
	s := &Server{
		name:     name,
		codec:    &codec.JSONCodec{},
		log:      zap.NewNop(),
		methods:  make(map[string]boundMethod),
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("server")
	return s
}

// Register makes the invocable methods of rcvr available under their
// snake_case names. A name registered twice is an error.
func (svr *Server) Register(rcvr any) error {
	svc, err := NewService(rcvr)
	if err != nil {
		return err
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	for name := range svc.method {
		if _, dup := svr.methods[name]; dup || name == PingMethod {
			return fmt.Errorf("server: method %s already registered", name)
		}
	}
	for name, mt := range svc.method {
		svr.methods[name] = boundMethod{svc: svc, mtype: mt}
	}
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are
// added and must all be added before the first session starts.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// buildHandler builds the middleware chain once, not per invocation.
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
func (svr *Server) buildHandler() middleware.HandlerFunc {
	svr.handlerOnce.Do(func() {
		svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)
	})
	return svr.handler
}

// Serve listens on socketPath and serves until Shutdown. When reg is non-nil
// the socket is advertised under the server name.
func (svr *Server) Serve(socketPath string, reg registry.Registry) error {
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", socketPath, err)
	}
	return svr.ServeListener(l, reg)
}

// ServeListener accepts clients on l until Shutdown.
func (svr *Server) ServeListener(l net.Listener, reg registry.Registry) error {
	svr.buildHandler()

	svr.mu.Lock()
	svr.listener = l
	svr.socketPath = l.Addr().String()
	svr.registry = reg
	svr.mu.Unlock()

	if reg != nil {
		ep := registry.Endpoint{Name: svr.name, SocketPath: svr.socketPath, Weight: 1}
		if err := reg.Register(context.Background(), svr.name, ep, registryTTL); err != nil {
			svr.log.Warn("advertise failed", zap.String("socket", svr.socketPath), zap.Error(err))
		}
	}

	// Accept loop: one goroutine per connection
	for {
		conn, err := l.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		uc, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			continue
		}
		go svr.ServeTransport(transport.NewUnixTransport(uc))
	}
}

// ServeTransport runs one session on t until the client goes away, then closes t.
// Frames are read by this goroutine only; each invocation is handled on its own.
func (svr *Server) ServeTransport(t transport.Transport) {
	handler := svr.buildHandler()
	sess := newSession(t)

	svr.mu.Lock()
	svr.sessions[sess] = struct{}{}
	svr.mu.Unlock()
	defer func() {
		sess.inflight.Wait()
		sess.Close()
		svr.mu.Lock()
		delete(svr.sessions, sess)
		svr.mu.Unlock()
	}()

	if svr.onSession != nil {
		svr.onSession(sess)
	}

	for {
		body, err := protocol.Decode(t)
		if err != nil {
			if !errors.Is(err, io.EOF) && !svr.shutdown.Load() {
				svr.log.Debug("session ended", zap.Error(err))
			}
			return
		}
		inv, err := message.UnmarshalInvocation(body)
		if err != nil {
			// Without an id there is nobody to answer.
			svr.log.Warn("malformed invocation", zap.Error(err))
			continue
		}

		svr.wg.Add(1)
		sess.inflight.Add(1)
		go svr.handleInvocation(handler, sess, inv)
	}
}

func (svr *Server) handleInvocation(handler middleware.HandlerFunc, sess *Session, inv *message.Invocation) {
	defer svr.wg.Done()
	defer sess.inflight.Done()

	reply := handler(contextWithSession(context.Background(), sess), inv)

	result := &message.Result{ID: inv.ID, HasID: true, Response: reply.Payload, Error: reply.Error}
	var descriptors [][]int
	if reply.Error == "" {
		descriptors = reply.Descriptors
		for _, fds := range descriptors {
			result.Descriptors += uint32(len(fds))
		}
	}
	if err := sess.writeResult(result, descriptors); err != nil {
		svr.log.Warn("reply failed", zap.Uint64("id", inv.ID), zap.String("method", inv.MethodName), zap.Error(err))
	}
}

// Sessions returns the sessions currently connected.
func (svr *Server) Sessions() []*Session {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	sessions := make([]*Session, 0, len(svr.sessions))
	for s := range svr.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop picking this server)
//  2. Set shutdown flag (so Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections)
//  4. Wait for in-flight invocations to finish (with timeout)
//  5. Close every session
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	reg, socketPath, l := svr.registry, svr.socketPath, svr.listener
	svr.mu.Unlock()

	if reg != nil {
		if err := reg.Deregister(context.Background(), svr.name, socketPath); err != nil {
			svr.log.Warn("deregister failed", zap.Error(err))
		}
	}

	svr.shutdown.Store(true)
	if l != nil {
		l.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("server: timeout waiting for in-flight invocations")
	}

	for _, s := range svr.Sessions() {
		s.Close()
	}
	return err
}

// businessHandler dispatches an invocation to its registered method.
//
// Flow: find method → reflect.New(args) → Codec.Decode(parameters, args) →
// reflect.Call → announce descriptors → Codec.Encode(reply)
func (svr *Server) businessHandler(ctx context.Context, inv *message.Invocation) *message.Reply {
	if inv.MethodName == PingMethod {
		return &message.Reply{}
	}

	svr.mu.Lock()
	bm, ok := svr.methods[inv.MethodName]
	svr.mu.Unlock()
	if !ok {
		return &message.Reply{Error: fmt.Sprintf("unknown method %q", inv.MethodName)}
	}

	argv := reflect.New(bm.mtype.ArgType)
	replyv := reflect.New(bm.mtype.ReplyType)

	if len(inv.Parameters) > 0 {
		if err := svr.codec.Decode(inv.Parameters, argv.Interface()); err != nil {
			return &message.Reply{Error: fmt.Sprintf("decode parameters: %v", err)}
		}
	}

	if err := bm.svc.Call(ctx, bm.mtype, argv, replyv); err != nil {
		return &message.Reply{Error: err.Error()}
	}

	// Announce each slot's descriptors in the order the client will pull them.
	reply := replyv.Interface()
	var descriptors [][]int
	for _, c := range codec.Classify(reply) {
		c.Slot.Count = int32(len(c.Slot.FDs))
		if len(c.Slot.FDs) > 0 {
			descriptors = append(descriptors, c.Slot.FDs)
		}
	}

	payload, err := svr.codec.Encode(reply)
	if err != nil {
		return &message.Reply{Error: fmt.Sprintf("encode reply: %v", err)}
	}
	return &message.Reply{Payload: payload, Descriptors: descriptors}
}
