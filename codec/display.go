package codec

// DisplayOutput describes one physical output.
type DisplayOutput struct {
	OutputID    uint32  `json:"output_id"`
	CardID      uint32  `json:"card_id"`
	Connected   bool    `json:"connected"`
	Used        bool    `json:"used"`
	Width       int32   `json:"width"`
	Height      int32   `json:"height"`
	PositionX   int32   `json:"position_x"`
	PositionY   int32   `json:"position_y"`
	RefreshRate float64 `json:"refresh_rate"`
	Orientation int32   `json:"orientation"` // degrees: 0, 90, 180, 270
}

// DisplayConfiguration is pushed whenever outputs are plugged, unplugged or
// reconfigured, and returned once in the connect reply.
type DisplayConfiguration struct {
	Outputs []DisplayOutput `json:"outputs"`
}
