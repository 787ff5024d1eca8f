package codec

// FDSlot is the descriptor-carrying part of a reply.
//
// The server sets Count to the number of descriptors it will send on the side
// channel right after the reply frame. The client pulls exactly that many,
// stores them in FDs and zeroes Count. FDs never travel in the payload.
type FDSlot struct {
	Count int32 `json:"fds_on_side_channel,omitempty"`
	FDs   []int `json:"-"`
}

// Attach stores received descriptors and marks the slot as satisfied.
func (s *FDSlot) Attach(fds []int) {
	s.FDs = append(s.FDs[:0], fds...)
	s.Count = 0
}

// Buffer is a graphics buffer handed to the client.
type Buffer struct {
	BufferID int32  `json:"buffer_id"`
	Width    int32  `json:"width"`
	Height   int32  `json:"height"`
	Stride   int32  `json:"stride"`
	Flags    uint32 `json:"flags,omitempty"`
	FDSlot
}

// Surface is the reply to a surface creation. The surface's own slot carries
// its event descriptors; the nested buffer, if any, carries its own.
type Surface struct {
	ID          int32   `json:"id"`
	Width       int32   `json:"width"`
	Height      int32   `json:"height"`
	PixelFormat int32   `json:"pixel_format"`
	BufferUsage int32   `json:"buffer_usage"`
	Buffer      *Buffer `json:"buffer,omitempty"`
	FDSlot
}

// Platform holds graphics-platform data, e.g. a render node descriptor.
type Platform struct {
	Data []byte `json:"data,omitempty"`
	FDSlot
}

// Connection is the reply to "connect".
type Connection struct {
	Platform             *Platform             `json:"platform,omitempty"`
	DisplayConfiguration *DisplayConfiguration `json:"display_configuration,omitempty"`
	SurfacePixelFormats  []int32               `json:"surface_pixel_formats,omitempty"`
}

// SocketFD carries fresh client sockets, e.g. for a helper process.
type SocketFD struct {
	FDSlot
}

// Shape names a well-known descriptor-carrying reply shape.
type Shape string

const (
	ShapeSurface  Shape = "surface"
	ShapeBuffer   Shape = "buffer"
	ShapePlatform Shape = "platform"
	ShapeSocket   Shape = "socket"
)

// Carrier is one slot found by Classify.
type Carrier struct {
	Shape Shape
	Slot  *FDSlot
}

// descriptorShapes is evaluated in order; the server sends descriptors in the
// same order, so this list is part of the wire contract.
var descriptorShapes = []struct {
	shape Shape
	slots func(v any) []Carrier
}{
	{ShapeSurface, surfaceSlots},
	{ShapeBuffer, bufferSlots},
	{ShapePlatform, platformSlots},
	{ShapeSocket, socketSlots},
}

// Classify returns the descriptor slots of a decoded reply in wire order.
// Values that are not one of the well-known shapes have none.
func Classify(v any) []Carrier {
	if v == nil {
		return nil
	}
	var carriers []Carrier
	for _, s := range descriptorShapes {
		carriers = append(carriers, s.slots(v)...)
	}
	return carriers
}

func surfaceSlots(v any) []Carrier {
	s, ok := v.(*Surface)
	if !ok || s == nil {
		return nil
	}
	carriers := []Carrier{{ShapeSurface, &s.FDSlot}}
	if s.Buffer != nil {
		carriers = append(carriers, Carrier{ShapeBuffer, &s.Buffer.FDSlot})
	}
	return carriers
}

func bufferSlots(v any) []Carrier {
	if b, ok := v.(*Buffer); ok && b != nil {
		return []Carrier{{ShapeBuffer, &b.FDSlot}}
	}
	return nil
}

func platformSlots(v any) []Carrier {
	switch p := v.(type) {
	case *Platform:
		if p != nil {
			return []Carrier{{ShapePlatform, &p.FDSlot}}
		}
	case *Connection:
		if p != nil && p.Platform != nil {
			return []Carrier{{ShapePlatform, &p.Platform.FDSlot}}
		}
	}
	return nil
}

func socketSlots(v any) []Carrier {
	if s, ok := v.(*SocketFD); ok && s != nil {
		return []Carrier{{ShapeSocket, &s.FDSlot}}
	}
	return nil
}
