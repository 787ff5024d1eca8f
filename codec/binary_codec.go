package codec

import (
	"encoding/json"
)

// BinaryCodec passes pre-encoded bytes through unchanged, for callers that
// serialize their own parameters (pixel data, keymaps). Any other value falls
// back to JSON so the well-known reply shapes still round-trip.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	case nil:
		return nil, nil
	}
	return json.Marshal(v)
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	if b, ok := v.(*[]byte); ok {
		*b = append((*b)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, v)
}

func (c *BinaryCodec) Name() string {
	return NameBinary
}
