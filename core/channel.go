// Package core is the platform-neutral firmware core of the goslab logic
// analyzer. All peripherals are reached through driver interfaces, so the
// package builds and runs both under tinygo and on a host with simulated
// hardware.
package core

import "errors"

// Channel identifies one pin / input-capture / transfer-channel triple.
// Valid capture channels are Channel1..Channel4; ChannelNone is the "no
// channel" sentinel used for untriggered captures.
type Channel uint8

const (
	ChannelNone Channel = 0
	Channel1    Channel = 1
	Channel2    Channel = 2
	Channel3    Channel = 3
	Channel4    Channel = 4

	// MaxChannels is the number of capture channels the hardware provides.
	MaxChannels = 4
)

// Valid reports whether c names an actual capture channel.
func (c Channel) Valid() bool {
	return c >= Channel1 && c <= Channel4
}

// Index returns the zero-based index of a valid channel.
func (c Channel) Index() int {
	return int(c) - 1
}

// Edge selects which logic-level transitions a capture unit reacts to.
// EdgeNone is never a valid capture edge; it only exists as the zero value.
type Edge uint8

const (
	EdgeNone    Edge = 0
	EdgeAny     Edge = 1
	EdgeFalling Edge = 2
	EdgeRising  Edge = 3
)

func (e Edge) String() string {
	switch e {
	case EdgeAny:
		return "any"
	case EdgeFalling:
		return "falling"
	case EdgeRising:
		return "rising"
	default:
		return "none"
	}
}

// ErrUnknownEdge is returned by ParseEdge for unrecognized edge names.
var ErrUnknownEdge = errors.New("unknown edge type")

// ParseEdge maps an edge name to its Edge value. Used by host-side tooling;
// the wire carries the raw byte.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "any":
		return EdgeAny, nil
	case "falling":
		return EdgeFalling, nil
	case "rising":
		return EdgeRising, nil
	default:
		return EdgeNone, ErrUnknownEdge
	}
}

// Result is the outcome of an instrument operation. The values match the
// status codes sent on the wire.
type Result uint8

const (
	ResultSuccess       Result = 1
	ResultArgumentError Result = 2
	ResultFailed        Result = 3
)
