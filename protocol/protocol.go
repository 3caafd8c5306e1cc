// Package protocol implements the framed serial protocol between the
// instrument firmware and the host.
//
// Every frame carries exactly one command or one response:
//
//	[length][sequence] [cmd id][fixed-width args...] [crc hi][crc lo][sync]
//
// Multi-byte argument fields are little-endian. Responses echo the command
// ID they answer, followed by a status byte and any result fields.
package protocol

// Version is the goslab firmware/protocol version.
const Version = "0.1.0"

// Frame layout constants.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E

	// Sequence bytes are 0x10..0x1F; the low nibble increments per frame.
	MessageSeqMask = 0x0F
	MessageDest    = 0x10
)

// Command IDs. These are fixed on the wire; both sides carry this table.
const (
	CmdCapture          uint8 = 0x01
	CmdStop             uint8 = 0x02
	CmdGetInitialStates uint8 = 0x03
)

// Status codes returned in every response.
const (
	StatusSuccess       uint8 = 1
	StatusArgumentError uint8 = 2
	StatusFailed        uint8 = 3
)
