package core

// PinReader reads the logic levels of all four analyzer pins at once,
// one bit per pin, channel 1 in bit 0.
type PinReader interface {
	States() uint8
}
