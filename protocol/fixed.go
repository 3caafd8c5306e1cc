package protocol

import "errors"

// ErrShortBuffer is returned when a field decode runs past the frame payload.
var ErrShortBuffer = errors.New("buffer too short for field")

// Fixed-width field codec. The instrument protocol uses fixed one- and
// two-byte fields, two-byte fields little-endian. Decoders advance the data
// slice past the consumed bytes, so a handler reads its arguments in order.

// WriteUint8 appends a one-byte field.
func WriteUint8(output OutputBuffer, v uint8) {
	output.Output([]byte{v})
}

// WriteUint16 appends a two-byte little-endian field.
func WriteUint16(output OutputBuffer, v uint16) {
	output.Output([]byte{uint8(v & 0xFF), uint8(v >> 8)})
}

// ReadUint8 consumes a one-byte field.
func ReadUint8(data *[]byte) (uint8, error) {
	if len(*data) < 1 {
		return 0, ErrShortBuffer
	}
	v := (*data)[0]
	*data = (*data)[1:]
	return v, nil
}

// ReadUint16 consumes a two-byte little-endian field.
func ReadUint16(data *[]byte) (uint16, error) {
	if len(*data) < 2 {
		return 0, ErrShortBuffer
	}
	v := uint16((*data)[0]) | uint16((*data)[1])<<8
	*data = (*data)[2:]
	return v, nil
}
