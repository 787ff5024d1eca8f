package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// sideChannelMarker is the single payload byte every descriptor message carries.
// SCM_RIGHTS control data must ride on at least one byte of ordinary data.
const sideChannelMarker = 'M'

// UnixTransport runs a channel over a Unix-domain stream socket.
type UnixTransport struct {
	conn *net.UnixConn
}

// NewUnixTransport wraps an established connection.
func NewUnixTransport(conn *net.UnixConn) *UnixTransport {
	return &UnixTransport{conn: conn}
}

// Dial connects to a display server listening on socketPath.
func Dial(ctx context.Context, socketPath string) (*UnixTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", socketPath, err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("transport: dial %s: not a unix connection", socketPath)
	}
	return NewUnixTransport(uc), nil
}

// FromFD takes ownership of a connected socket descriptor, e.g. one received
// in a socket reply.
func FromFD(fd int) (*UnixTransport, error) {
	f := os.NewFile(uintptr(fd), fmt.Sprintf("display-rpc-fd-%d", fd))
	if f == nil {
		return nil, fmt.Errorf("transport: invalid descriptor %d", fd)
	}
	// FileConn dups the descriptor; the original is released with f.
	defer f.Close()

	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("transport: descriptor %d: %w", fd, err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("transport: descriptor %d is not a unix socket", fd)
	}
	return NewUnixTransport(uc), nil
}

// SocketPair returns two raw connected stream socket descriptors, both close-on-exec.
// One end is usually handed to another process in a socket reply.
func SocketPair() ([2]int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return fds, fmt.Errorf("transport: socketpair: %w", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return fds, nil
}

// Pair returns both ends of a fresh connected socket pair.
func Pair() (*UnixTransport, *UnixTransport, error) {
	fds, err := SocketPair()
	if err != nil {
		return nil, nil, err
	}
	a, err := FromFD(fds[0])
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := FromFD(fds[1])
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

func (t *UnixTransport) Read(p []byte) (int, error) {
	return t.conn.Read(p)
}

func (t *UnixTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

// SendFDs sends the marker byte with all descriptors attached.
// The descriptors stay owned by the caller.
func (t *UnixTransport) SendFDs(fds []int) error {
	if len(fds) == 0 {
		return nil
	}
	oob := unix.UnixRights(fds...)
	n, oobn, err := t.conn.WriteMsgUnix([]byte{sideChannelMarker}, oob, nil)
	if err != nil {
		return fmt.Errorf("transport: send descriptors: %w", err)
	}
	if n != 1 || oobn != len(oob) {
		return fmt.Errorf("transport: send descriptors: %w", io.ErrShortWrite)
	}
	return nil
}

// ReceiveFDs reads side-channel messages until n descriptors have arrived or
// the timeout expires. On failure every descriptor already received is closed.
func (t *UnixTransport) ReceiveFDs(n int, timeout time.Duration) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("transport: receive descriptors: %w", err)
	}
	defer t.conn.SetReadDeadline(time.Time{})

	fds := make([]int, 0, n)
	fail := func(err error) ([]int, error) {
		for _, fd := range fds {
			unix.Close(fd)
		}
		return nil, err
	}

	var marker [1]byte
	oob := make([]byte, unix.CmsgSpace(n*4))
	for len(fds) < n {
		_, oobn, flags, _, err := t.conn.ReadMsgUnix(marker[:], oob)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return fail(fmt.Errorf("%w: got %d of %d", ErrDescriptorTimeout, len(fds), n))
			}
			return fail(fmt.Errorf("transport: receive descriptors: %w", err))
		}
		if flags&unix.MSG_CTRUNC != 0 {
			return fail(errors.New("transport: receive descriptors: control message truncated"))
		}

		msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return fail(fmt.Errorf("transport: parse control message: %w", err))
		}
		for i := range msgs {
			got, err := unix.ParseUnixRights(&msgs[i])
			if err != nil {
				continue
			}
			for _, fd := range got {
				unix.CloseOnExec(fd)
			}
			fds = append(fds, got...)
		}
	}
	if len(fds) > n {
		for _, fd := range fds[n:] {
			unix.Close(fd)
		}
		fds = fds[:n]
	}
	return fds, nil
}

func (t *UnixTransport) CloseWrite() error {
	return t.conn.CloseWrite()
}

func (t *UnixTransport) Close() error {
	return t.conn.Close()
}

// Conn returns the underlying connection.
func (t *UnixTransport) Conn() *net.UnixConn {
	return t.conn
}
