package codec

import (
	"encoding/json"
)

// JSONCodec is the default payload codec. Descriptor slots encode only their
// count; the descriptors themselves follow on the side channel.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode fills v from data. Descriptor counts in data land in v's slots, ready
// for the reader to pull.
func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Name() string {
	return NameJSON
}
