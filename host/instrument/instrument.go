// Package instrument is the host-side client for the logic analyzer: it
// frames the three instrument commands, waits for their status responses,
// and decodes result fields.
package instrument

import (
	"errors"
	"fmt"
	"time"

	"goslab/core"
	"goslab/host/serial"
	"goslab/protocol"
)

// ErrArgument is returned when the device rejects a request's parameters.
var ErrArgument = errors.New("instrument rejected arguments")

const responseTimeout = 2 * time.Second

// LogicAnalyzer is a connected logic analyzer instrument.
type LogicAnalyzer struct {
	transport *protocol.HostTransport
	port      serial.Port
}

// Connect opens the serial device and starts the protocol transport.
func Connect(cfg *serial.Config) (*LogicAnalyzer, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	return &LogicAnalyzer{
		transport: protocol.NewHostTransport(port),
		port:      port,
	}, nil
}

// NewWithTransport wraps an already-running transport; used by tests.
func NewWithTransport(t *protocol.HostTransport) *LogicAnalyzer {
	return &LogicAnalyzer{transport: t}
}

// Close shuts down the transport and the serial port.
func (la *LogicAnalyzer) Close() error {
	if la.transport != nil {
		return la.transport.Close()
	}
	return nil
}

// Capture starts a capture of events timestamps spread across channels
// 1..numChannels, on the given edge, optionally gated by a trigger channel
// (core.ChannelNone starts immediately). It returns once the device has
// armed the capture; data acquisition proceeds on the device.
func (la *LogicAnalyzer) Capture(numChannels uint8, events uint16, edge core.Edge, trigger core.Channel) error {
	_, err := la.roundTrip(protocol.CmdCapture, func(output protocol.OutputBuffer) {
		protocol.WriteUint8(output, numChannels)
		protocol.WriteUint16(output, events)
		protocol.WriteUint8(output, uint8(edge))
		protocol.WriteUint8(output, uint8(trigger))
	})
	return err
}

// Stop aborts any capture in progress and idles all channels.
func (la *LogicAnalyzer) Stop() error {
	_, err := la.roundTrip(protocol.CmdStop, nil)
	return err
}

// InitialStates returns the pin levels the device snapshotted at trigger
// time, one bit per channel.
func (la *LogicAnalyzer) InitialStates() (uint8, error) {
	rest, err := la.roundTrip(protocol.CmdGetInitialStates, nil)
	if err != nil {
		return 0, err
	}
	states, err := protocol.ReadUint8(&rest)
	if err != nil {
		return 0, fmt.Errorf("malformed initial-states response: %w", err)
	}
	return states, nil
}

// roundTrip sends one command, waits for its response, and checks the
// echoed command ID and status. It returns any result fields after the
// status byte.
func (la *LogicAnalyzer) roundTrip(cmdID uint8, args func(output protocol.OutputBuffer)) ([]byte, error) {
	if err := la.transport.SendCommand(cmdID, args); err != nil {
		return nil, err
	}

	resp, err := la.transport.ReceiveResponse(responseTimeout)
	if err != nil {
		return nil, err
	}

	payload := resp.Payload
	gotID, err := protocol.ReadUint8(&payload)
	if err != nil {
		return nil, fmt.Errorf("empty response: %w", err)
	}
	if gotID != cmdID {
		return nil, fmt.Errorf("response for command 0x%02x, expected 0x%02x", gotID, cmdID)
	}

	status, err := protocol.ReadUint8(&payload)
	if err != nil {
		return nil, fmt.Errorf("response missing status: %w", err)
	}
	switch status {
	case protocol.StatusSuccess:
		return payload, nil
	case protocol.StatusArgumentError:
		return nil, ErrArgument
	default:
		return nil, fmt.Errorf("instrument reported status %d", status)
	}
}
