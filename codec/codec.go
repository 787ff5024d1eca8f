// Package codec turns call parameters and replies into opaque payload bytes and back.
//
// The channel never looks inside payloads, with one exception: after a reply has been
// decoded, Classify reports which well-known reply shapes announce descriptors on the
// side channel, so the reader can pull them.
package codec

import "fmt"

// Codec encodes and decodes payloads. Implementations must be goroutine-safe.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string // "json", "binary"
}

const (
	NameJSON   = "json"
	NameBinary = "binary"
)

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case NameJSON, "":
		return &JSONCodec{}, nil
	case NameBinary:
		return &BinaryCodec{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
