package client

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"display-rpc/codec"
	"display-rpc/event"
	"display-rpc/loadbalance"
	"display-rpc/message"
	"display-rpc/registry"
	"display-rpc/server"
	"display-rpc/transport"
)

type SurfaceSpec struct {
	Width, Height int32
}

// compositor is a minimal display server.
type compositor struct {
	t   *testing.T
	svr *server.Server
}

// pipeEnd returns one end of a fresh pipe holding tag.
func (c *compositor) pipeEnd(tag byte) int {
	r, w, err := os.Pipe()
	if err != nil {
		c.t.Fatal(err)
	}
	w.Write([]byte{tag})
	w.Close()
	c.t.Cleanup(func() { r.Close() })
	return int(r.Fd())
}

func (c *compositor) CreateSurface(args *SurfaceSpec, reply *codec.Surface) error {
	reply.ID = 5
	reply.Width, reply.Height = args.Width, args.Height
	reply.FDs = []int{c.pipeEnd('s')}
	reply.Buffer = &codec.Buffer{
		BufferID: 1,
		FDSlot:   codec.FDSlot{FDs: []int{c.pipeEnd('a'), c.pipeEnd('b')}},
	}
	return nil
}

// OpenSession hands out a socket to a fresh session of the same server.
func (c *compositor) OpenSession(args *struct{}, reply *codec.SocketFD) error {
	fds, err := transport.SocketPair()
	if err != nil {
		return err
	}
	t, err := transport.FromFD(fds[0])
	if err != nil {
		return err
	}
	go c.svr.ServeTransport(t)
	reply.FDs = []int{fds[1]}
	c.t.Cleanup(func() { unix.Close(fds[1]) })
	return nil
}

func readTag(t *testing.T, fd int) byte {
	t.Helper()
	var b [1]byte
	if _, err := unix.Read(fd, b[:]); err != nil {
		t.Fatalf("read fd %d: %v", fd, err)
	}
	return b[0]
}

func startServer(t *testing.T, opts ...server.Option) *server.Server {
	t.Helper()
	svr := server.NewServer("display", opts...)
	if err := svr.Register(&compositor{t: t, svr: svr}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr
}

func pairWith(t *testing.T, svr *server.Server, opts ...Option) *Channel {
	t.Helper()
	a, b, err := transport.Pair()
	if err != nil {
		t.Fatal(err)
	}
	go svr.ServeTransport(b)
	ch := NewChannel(a, opts...)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestEndToEndDescriptors(t *testing.T) {
	ch := pairWith(t, startServer(t))

	var surface codec.Surface
	if err := ch.Invoke(context.Background(), "create_surface", SurfaceSpec{Width: 800, Height: 600}, &surface); err != nil {
		t.Fatal(err)
	}
	if surface.ID != 5 || surface.Width != 800 {
		t.Fatalf("unexpected surface %+v", surface)
	}
	if surface.Count != 0 || len(surface.FDs) != 1 {
		t.Fatalf("expect one surface descriptor, got %+v", surface.FDSlot)
	}
	if surface.Buffer == nil || surface.Buffer.Count != 0 || len(surface.Buffer.FDs) != 2 {
		t.Fatalf("expect two buffer descriptors, got %+v", surface.Buffer)
	}

	want := []struct {
		fd  int
		tag byte
	}{
		{surface.FDs[0], 's'},
		{surface.Buffer.FDs[0], 'a'},
		{surface.Buffer.FDs[1], 'b'},
	}
	for _, w := range want {
		if got := readTag(t, w.fd); got != w.tag {
			t.Errorf("descriptor %d: expect %c, got %c", w.fd, w.tag, got)
		}
		unix.Close(w.fd)
	}
}

func TestEndToEndUnclaimedDescriptors(t *testing.T) {
	rep := &recordingReport{}
	ch := pairWith(t, startServer(t), WithReport(rep))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := ch.Invoke(ctx, "create_surface", SurfaceSpec{Width: 1, Height: 1}, nil); err != nil {
		t.Fatal(err)
	}
	if err := ch.Invoke(ctx, "create_surface", SurfaceSpec{Width: 1, Height: 1}, &foreignReply{}); err != nil {
		t.Fatal(err)
	}

	var surface codec.Surface
	if err := ch.Invoke(ctx, "create_surface", SurfaceSpec{Width: 2, Height: 2}, &surface); err != nil {
		t.Fatalf("channel stuck after unclaimed descriptors: %v", err)
	}
	if len(surface.FDs) != 1 || surface.Buffer == nil || len(surface.Buffer.FDs) != 2 {
		t.Fatalf("expect 1 surface and 2 buffer descriptors, got %+v", surface)
	}
	if got := readTag(t, surface.Buffer.FDs[1]); got != 'b' {
		t.Fatalf("expect the second buffer descriptor, got %c", got)
	}
	for _, fd := range append(surface.FDs, surface.Buffer.FDs...) {
		unix.Close(fd)
	}
	if got := rep.snapshot().discarded; got != 6 {
		t.Fatalf("expect 6 discarded descriptors, got %d", got)
	}
}

func TestEndToEndEvents(t *testing.T) {
	sessions := make(chan *server.Session, 1)
	svr := startServer(t, server.OnSession(func(s *server.Session) { sessions <- s }))

	got := make(chan event.Record, 1)
	lifecycle := make(chan message.LifecycleState, 2)
	surfaces := NewSurfaceRegistry()
	surfaces.Insert(5, EventHandlerFunc(func(rec event.Record) { got <- rec }))

	ch := pairWith(t, svr,
		WithSurfaces(surfaces),
		WithLifecycleObserver(LifecycleObserverFunc(func(s message.LifecycleState) { lifecycle <- s })),
	)
	sess := <-sessions

	rec := event.Record{Type: event.TypeMotion, SurfaceID: 5, X: 10.5, Y: 20}
	err := sess.PushEvents(message.EventSequence{
		Events:    [][]byte{rec.Encode()},
		Lifecycle: message.Lifecycle(message.LifecycleWillSuspend),
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case state := <-lifecycle:
		if state != message.LifecycleWillSuspend {
			t.Fatalf("unexpected lifecycle %s", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle event not delivered")
	}
	select {
	case r := <-got:
		if r != rec {
			t.Fatalf("expect %+v, got %+v", rec, r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("surface event not delivered")
	}

	// The server going away ends the channel with one connection lost event.
	sess.Close()
	waitClosed(t, ch.Disconnected())
	if state := <-lifecycle; state != message.LifecycleConnectionLost {
		t.Fatalf("expect connection lost, got %s", state)
	}
}

func TestEndToEndSocketReply(t *testing.T) {
	ch := pairWith(t, startServer(t))

	var sock codec.SocketFD
	if err := ch.Invoke(context.Background(), "open_session", struct{}{}, &sock); err != nil {
		t.Fatal(err)
	}
	if len(sock.FDs) != 1 {
		t.Fatalf("expect one socket, got %+v", sock.FDSlot)
	}

	second, err := FromFD(sock.FDs[0])
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	if err := second.Invoke(context.Background(), "ping", nil, nil); err != nil {
		t.Fatalf("ping over the received socket: %v", err)
	}
}

func TestEndToEndServerError(t *testing.T) {
	ch := pairWith(t, startServer(t))

	err := ch.Invoke(context.Background(), "destroy_everything", nil, nil)
	if _, ok := err.(*ServerError); !ok {
		t.Fatalf("expect *ServerError, got %v", err)
	}
	if !ch.Connected() {
		t.Fatal("a server error must not disconnect the channel")
	}
}

// memRegistry is an in-process registry.
type memRegistry struct {
	mu        sync.Mutex
	endpoints map[string][]registry.Endpoint
}

func (r *memRegistry) Register(_ context.Context, name string, ep registry.Endpoint, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.endpoints == nil {
		r.endpoints = make(map[string][]registry.Endpoint)
	}
	r.endpoints[name] = append(r.endpoints[name], ep)
	return nil
}

func (r *memRegistry) Deregister(_ context.Context, name string, socketPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.endpoints[name][:0]
	for _, ep := range r.endpoints[name] {
		if ep.SocketPath != socketPath {
			eps = append(eps, ep)
		}
	}
	r.endpoints[name] = eps
	return nil
}

func (r *memRegistry) Discover(_ context.Context, name string) ([]registry.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]registry.Endpoint(nil), r.endpoints[name]...), nil
}

func (r *memRegistry) Watch(ctx context.Context, name string) <-chan []registry.Endpoint {
	ch := make(chan []registry.Endpoint)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func TestClientConnect(t *testing.T) {
	reg := &memRegistry{}
	path := filepath.Join(t.TempDir(), "display.sock")

	svr := server.NewServer("display")
	served := make(chan error, 1)
	go func() { served <- svr.Serve(path, reg) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if eps, _ := reg.Discover(context.Background(), "display"); len(eps) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	c := NewClient(reg, &loadbalance.RoundRobinBalancer{})
	ch, err := c.Connect(context.Background(), "display")
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()

	if err := ch.Invoke(context.Background(), "ping", nil, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Connect(context.Background(), "nobody"); err == nil {
		t.Fatal("expect error for an unknown server")
	}

	if err := svr.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}
	if err := <-served; err != nil {
		t.Fatal(err)
	}
	if eps, _ := reg.Discover(context.Background(), "display"); len(eps) != 0 {
		t.Fatalf("shutdown should deregister, still have %+v", eps)
	}
	waitClosed(t, ch.Disconnected())
}
