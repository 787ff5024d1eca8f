package message

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded protobuf field. Only varint and length-delimited fields
// carry values; other wire types are skipped by walk.
type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

func (f field) varint(dst *uint64) error {
	if f.typ != protowire.VarintType {
		return fmt.Errorf("field %d: wire type %d, want varint", f.num, f.typ)
	}
	*dst = f.u
	return nil
}

func (f field) bytesValue() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, fmt.Errorf("field %d: wire type %d, want bytes", f.num, f.typ)
	}
	return f.b, nil
}

// walk calls fn for every field in data, in encoding order.
// Values alias data; every frame body is freshly allocated, so no copy is made.
func walk(data []byte, fn func(field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
