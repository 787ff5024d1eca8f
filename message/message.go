// Package message defines the messages exchanged between a display server and its clients.
//
// An Invocation is the request envelope; a Result carries an optional reply to one
// invocation plus any events the server pushed. Both are encoded in the protobuf wire
// format and wrapped in a protocol frame for transmission. Parameters and responses are
// opaque payload bytes produced by a codec.
package message

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ProtocolVersion is stamped on every outgoing Invocation.
const ProtocolVersion uint32 = 1

// Invocation carries the data for a single call.
type Invocation struct {
	ID              uint64 // Unique for the lifetime of a channel
	MethodName      string // e.g. "create_surface"
	Parameters      []byte // Codec-encoded parameters
	ProtocolVersion uint32
}

const (
	invocationID         protowire.Number = 1
	invocationMethod     protowire.Number = 2
	invocationParameters protowire.Number = 3
	invocationVersion    protowire.Number = 4
)

// Marshal encodes the invocation body.
func (inv *Invocation) Marshal() []byte {
	b := make([]byte, 0, 16+len(inv.MethodName)+len(inv.Parameters))
	b = protowire.AppendTag(b, invocationID, protowire.VarintType)
	b = protowire.AppendVarint(b, inv.ID)
	b = protowire.AppendTag(b, invocationMethod, protowire.BytesType)
	b = protowire.AppendString(b, inv.MethodName)
	b = protowire.AppendTag(b, invocationParameters, protowire.BytesType)
	b = protowire.AppendBytes(b, inv.Parameters)
	b = protowire.AppendTag(b, invocationVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(inv.ProtocolVersion))
	return b
}

// UnmarshalInvocation decodes an invocation body.
func UnmarshalInvocation(data []byte) (*Invocation, error) {
	inv := &Invocation{}
	err := walk(data, func(f field) error {
		switch f.num {
		case invocationID:
			return f.varint(&inv.ID)
		case invocationMethod:
			b, err := f.bytesValue()
			inv.MethodName = string(b)
			return err
		case invocationParameters:
			b, err := f.bytesValue()
			inv.Parameters = b
			return err
		case invocationVersion:
			var v uint64
			err := f.varint(&v)
			inv.ProtocolVersion = uint32(v)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("message: decode invocation: %w", err)
	}
	return inv, nil
}

// Result is one message received from the server.
//
//   - Reply:  HasID is set and Response holds the codec-encoded reply (or Error is set).
//   - Events: Events holds zero or more pushed event batches, with or without a reply.
//
// Descriptors is the total number of descriptors the server sends on the side
// channel right after this frame. The client drains that many whatever it does
// with the reply, so the byte stream stays in step.
type Result struct {
	ID          uint64
	HasID       bool
	Response    []byte
	Events      []EventSequence
	Error       string // Non-empty if the server-side handler failed
	Descriptors uint32
}

const (
	resultID       protowire.Number = 1
	resultResponse protowire.Number = 2
	resultEvents   protowire.Number = 3
	resultError    protowire.Number = 4
	resultFDs      protowire.Number = 5
)

// Marshal encodes the result body.
func (r *Result) Marshal() []byte {
	var b []byte
	if r.HasID {
		b = protowire.AppendTag(b, resultID, protowire.VarintType)
		b = protowire.AppendVarint(b, r.ID)
	}
	if r.Response != nil {
		b = protowire.AppendTag(b, resultResponse, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Response)
	}
	for i := range r.Events {
		b = protowire.AppendTag(b, resultEvents, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Events[i].Marshal())
	}
	if r.Error != "" {
		b = protowire.AppendTag(b, resultError, protowire.BytesType)
		b = protowire.AppendString(b, r.Error)
	}
	if r.Descriptors > 0 {
		b = protowire.AppendTag(b, resultFDs, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Descriptors))
	}
	return b
}

// UnmarshalResult decodes a result body, including its event batches.
func UnmarshalResult(data []byte) (*Result, error) {
	r := &Result{}
	err := walk(data, func(f field) error {
		switch f.num {
		case resultID:
			r.HasID = true
			return f.varint(&r.ID)
		case resultResponse:
			b, err := f.bytesValue()
			r.Response = b
			return err
		case resultEvents:
			b, err := f.bytesValue()
			if err != nil {
				return err
			}
			seq, err := UnmarshalEventSequence(b)
			if err != nil {
				return err
			}
			r.Events = append(r.Events, *seq)
		case resultError:
			b, err := f.bytesValue()
			r.Error = string(b)
			return err
		case resultFDs:
			var v uint64
			err := f.varint(&v)
			r.Descriptors = uint32(v)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("message: decode result: %w", err)
	}
	return r, nil
}

// Reply is the server-side outcome of one invocation before it is framed.
// Descriptors holds one list per descriptor-carrying slot of the reply, in the
// order the client will pull them.
type Reply struct {
	Payload     []byte
	Error       string
	Descriptors [][]int
}
