package server

import (
	"context"
	"fmt"
	"sync"

	"display-rpc/message"
	"display-rpc/protocol"
	"display-rpc/transport"
)

// Session is the server side of one client connection.
type Session struct {
	transport transport.Transport
	writeMu   sync.Mutex     // a Result frame and its descriptors go out back to back
	inflight  sync.WaitGroup // invocations of this session still being handled
	closeOnce sync.Once
}

func newSession(t transport.Transport) *Session {
	return &Session{transport: t}
}

// PushEvents sends event sequences that answer no call.
func (s *Session) PushEvents(seqs ...message.EventSequence) error {
	return s.writeResult(&message.Result{Events: seqs}, nil)
}

// writeResult writes r, then each descriptor set as its own side-channel message.
func (s *Session) writeResult(r *message.Result, descriptors [][]int) error {
	frame, err := protocol.Frame(r.Marshal())
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.transport.Write(frame); err != nil {
		return fmt.Errorf("server: write result: %w", err)
	}
	for _, fds := range descriptors {
		if err := s.transport.SendFDs(fds); err != nil {
			return err
		}
	}
	return nil
}

// Close ends the session; the client sees end of stream.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.transport.Close()
	})
	return err
}

type sessionKey struct{}

func contextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session an invocation arrived on.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}
