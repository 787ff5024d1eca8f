// Package event decodes the fixed-size raw event records a display server pushes
// inside event sequences.
//
// Records travel as bytes with no alignment guarantee, so they are never
// reinterpreted in place: every field is read at its fixed offset, little-endian,
// into a native Record.
//
//	0      4      8             16     20     24     28     32     36     40
//	┌──────┬──────┬─────────────┬──────┬──────┬──────┬──────┬──────┬──────┐
//	│ type │ surf │  timestamp  │ dev  │ act  │ code │ mods │  x   │  y   │
//	│ u32  │ i32  │    i64 ns   │ i32  │ i32  │ i32  │ u32  │ f32  │ f32  │
//	└──────┴──────┴─────────────┴──────┴──────┴──────┴──────┴──────┴──────┘
package event

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Size is the exact length of an encoded record.
const Size = 40

// ErrRecordSize is returned for a blob whose length is not Size.
var ErrRecordSize = errors.New("event: record size mismatch")

// Type identifies what a record describes.
type Type uint32

const (
	TypeKey         Type = 1
	TypeMotion      Type = 2
	TypeSurface     Type = 3 // surface attribute change
	TypeResize      Type = 4
	TypeClose       Type = 5
	TypeOrientation Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeKey:
		return "key"
	case TypeMotion:
		return "motion"
	case TypeSurface:
		return "surface"
	case TypeResize:
		return "resize"
	case TypeClose:
		return "close"
	case TypeOrientation:
		return "orientation"
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// Record is one decoded event. SurfaceID routes it to its surface's handler.
type Record struct {
	Type      Type
	SurfaceID int32
	Timestamp int64 // nanoseconds
	DeviceID  int32
	Action    int32
	Code      int32 // key code, button, attribute or orientation depending on Type
	Modifiers uint32
	X, Y      float32 // pointer position, or width/height for resize
}

const (
	offType      = 0
	offSurface   = 4
	offTimestamp = 8
	offDevice    = 16
	offAction    = 20
	offCode      = 24
	offModifiers = 28
	offX         = 32
	offY         = 36
)

// Decode copies a raw blob into a Record.
func Decode(b []byte) (Record, error) {
	if len(b) != Size {
		return Record{}, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(b), Size)
	}
	le := binary.LittleEndian
	return Record{
		Type:      Type(le.Uint32(b[offType:])),
		SurfaceID: int32(le.Uint32(b[offSurface:])),
		Timestamp: int64(le.Uint64(b[offTimestamp:])),
		DeviceID:  int32(le.Uint32(b[offDevice:])),
		Action:    int32(le.Uint32(b[offAction:])),
		Code:      int32(le.Uint32(b[offCode:])),
		Modifiers: le.Uint32(b[offModifiers:]),
		X:         math.Float32frombits(le.Uint32(b[offX:])),
		Y:         math.Float32frombits(le.Uint32(b[offY:])),
	}, nil
}

// Encode returns the wire form of r.
func (r Record) Encode() []byte {
	b := make([]byte, Size)
	le := binary.LittleEndian
	le.PutUint32(b[offType:], uint32(r.Type))
	le.PutUint32(b[offSurface:], uint32(r.SurfaceID))
	le.PutUint64(b[offTimestamp:], uint64(r.Timestamp))
	le.PutUint32(b[offDevice:], uint32(r.DeviceID))
	le.PutUint32(b[offAction:], uint32(r.Action))
	le.PutUint32(b[offCode:], uint32(r.Code))
	le.PutUint32(b[offModifiers:], r.Modifiers)
	le.PutUint32(b[offX:], math.Float32bits(r.X))
	le.PutUint32(b[offY:], math.Float32bits(r.Y))
	return b
}
