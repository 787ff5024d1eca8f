package client

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"display-rpc/codec"
	"display-rpc/message"
	"display-rpc/protocol"
	"display-rpc/report"
	"display-rpc/transport"
)

// fakeTransport is an in-memory transport. Frames the channel writes appear on
// writes; frames the test pushes come out of Read; descriptors queued on fds
// are handed out by ReceiveFDs.
type fakeTransport struct {
	r *io.PipeReader
	w *io.PipeWriter

	writes chan []byte
	fds    chan int

	mu          sync.Mutex
	writeErr    error
	closeWrites atomic.Int32
}

func newFakeTransport() *fakeTransport {
	r, w := io.Pipe()
	return &fakeTransport{
		r:      r,
		w:      w,
		writes: make(chan []byte, 1024),
		fds:    make(chan int, 64),
	}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	err := f.writeErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	f.writes <- bytes.Clone(p)
	return len(p), nil
}

func (f *fakeTransport) SendFDs(fds []int) error {
	return nil
}

func (f *fakeTransport) ReceiveFDs(n int, timeout time.Duration) ([]int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var got []int
	for len(got) < n {
		select {
		case fd := <-f.fds:
			got = append(got, fd)
		case <-timer.C:
			return nil, fmt.Errorf("%w: got %d of %d", transport.ErrDescriptorTimeout, len(got), n)
		}
	}
	return got, nil
}

func (f *fakeTransport) CloseWrite() error {
	f.closeWrites.Add(1)
	return nil
}

func (f *fakeTransport) Close() error {
	return f.r.Close()
}

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// push sends a Result to the channel's reader and returns once it has been read.
func (f *fakeTransport) push(t *testing.T, r *message.Result) {
	t.Helper()
	f.pushRaw(t, r.Marshal())
}

func (f *fakeTransport) pushRaw(t *testing.T, body []byte) {
	t.Helper()
	if err := protocol.Encode(f.w, body); err != nil {
		t.Fatalf("push: %v", err)
	}
}

// next returns the next invocation the channel wrote.
func (f *fakeTransport) next(t *testing.T) *message.Invocation {
	t.Helper()
	select {
	case frame := <-f.writes:
		body, err := protocol.Decode(bytes.NewReader(frame))
		if err != nil {
			t.Fatalf("written frame: %v", err)
		}
		inv, err := message.UnmarshalInvocation(body)
		if err != nil {
			t.Fatal(err)
		}
		return inv
	case <-time.After(2 * time.Second):
		t.Fatal("no invocation written")
		return nil
	}
}

// reply builds a Result answering id with v encoded as JSON.
func reply(t *testing.T, id uint64, v any) *message.Result {
	t.Helper()
	payload, err := (&codec.JSONCodec{}).Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	return &message.Result{ID: id, HasID: true, Response: payload}
}

// recordingReport remembers what went wrong.
type recordingReport struct {
	report.NullReport

	mu          sync.Mutex
	succeeded   []string
	invFailed   []error
	receiptErrs []error
	orphans     []uint64
	eventErrs   []error
	received    map[codec.Shape][]int
	waitFailed  []codec.Shape
	discarded   int
	failures    []error
}

func (r *recordingReport) InvocationSucceeded(inv *message.Invocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded = append(r.succeeded, inv.MethodName)
}

func (r *recordingReport) InvocationFailed(_ *message.Invocation, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invFailed = append(r.invFailed, err)
}

func (r *recordingReport) ResultReceiptFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiptErrs = append(r.receiptErrs, err)
}

func (r *recordingReport) OrphanedResult(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans = append(r.orphans, id)
}

func (r *recordingReport) EventParsingFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventErrs = append(r.eventErrs, err)
}

func (r *recordingReport) DescriptorsReceived(shape codec.Shape, fds []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.received == nil {
		r.received = make(map[codec.Shape][]int)
	}
	r.received[shape] = append(r.received[shape], fds...)
}

func (r *recordingReport) DescriptorWaitFailed(shape codec.Shape, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waitFailed = append(r.waitFailed, shape)
}

func (r *recordingReport) DescriptorsDiscarded(_ uint64, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discarded += n
}

func (r *recordingReport) ConnectionFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *recordingReport) snapshot() *recordingReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &recordingReport{
		succeeded:   append([]string(nil), r.succeeded...),
		invFailed:   append([]error(nil), r.invFailed...),
		receiptErrs: append([]error(nil), r.receiptErrs...),
		orphans:     append([]uint64(nil), r.orphans...),
		eventErrs:   append([]error(nil), r.eventErrs...),
		received:    maps.Clone(r.received),
		waitFailed:  append([]codec.Shape(nil), r.waitFailed...),
		discarded:   r.discarded,
		failures:    append([]error(nil), r.failures...),
	}
}

// pipeFDs returns n descriptors the channel may close: duplicates of pipe read
// ends whose originals are already released.
func pipeFDs(t *testing.T, n int) []int {
	t.Helper()
	fds := make([]int, 0, n)
	for range n {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		fd, err := unix.Dup(int(r.Fd()))
		r.Close()
		w.Close()
		if err != nil {
			t.Fatal(err)
		}
		fds = append(fds, fd)
	}
	return fds
}

// lifecycleLog records lifecycle transitions.
type lifecycleLog struct {
	mu     sync.Mutex
	states []message.LifecycleState
}

func (l *lifecycleLog) LifecycleChanged(state message.LifecycleState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, state)
}

func (l *lifecycleLog) count(state message.LifecycleState) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.states {
		if s == state {
			n++
		}
	}
	return n
}

// newTestChannel starts a channel on a fake transport with a recording report.
func newTestChannel(t *testing.T, opts ...Option) (*Channel, *fakeTransport, *recordingReport) {
	t.Helper()
	f := newFakeTransport()
	rep := &recordingReport{}
	ch := NewChannel(f, append([]Option{WithReport(rep)}, opts...)...)
	t.Cleanup(func() { ch.Close() })
	return ch, f, rep
}

// waitErr waits for a completion result.
func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("call never completed")
		return nil
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("channel never disconnected")
	}
}
