// Package protocol implements the frame protocol spoken on a display-server socket.
//
// Every message on the stream is a 2-byte big-endian body length followed by exactly
// that many body bytes. There is no magic, version or handshake at this layer: the
// receiver reads the header first to learn the body length, then reads exactly that
// many bytes.
//
// Frame format:
//
//	0        2
//	┌────────┬────────────────┐
//	│ length │   body ...     │
//	│ uint16 │ length bytes   │
//	└────────┴────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	HeaderSize  = 2              // body length, big-endian
	MaxBodySize = math.MaxUint16 // largest body a header can describe
)

// ErrBodyTooLarge is returned when a body cannot be described by a 2-byte header.
// Callers must keep payloads under MaxBodySize.
var ErrBodyTooLarge = errors.New("protocol: body exceeds 65535 bytes")

// Frame returns header+body as one buffer.
func Frame(body []byte) ([]byte, error) {
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}
	buf := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint16(buf[:HeaderSize], uint16(len(body)))
	copy(buf[HeaderSize:], body)
	return buf, nil
}

// Encode writes a complete frame to w with a single Write.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames from different calls will interleave and corrupt the stream.
func Encode(w io.Writer, body []byte) error {
	buf, err := Frame(body)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadHeader reads exactly HeaderSize bytes and returns the announced body length.
// A stream that ends before the first header byte returns io.EOF; one that ends
// inside the header returns io.ErrUnexpectedEOF.
func ReadHeader(r io.Reader) (uint16, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(hdr[:]), nil
}

// ReadBody reads exactly n body bytes. Running out of stream here is always
// io.ErrUnexpectedEOF, since a header already announced the body.
func ReadBody(r io.Reader, n uint16) ([]byte, error) {
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// Decode reads one complete frame from r and returns its body.
func Decode(r io.Reader) ([]byte, error) {
	n, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return ReadBody(r, n)
}
