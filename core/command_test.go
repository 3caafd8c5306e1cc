package core

import (
	"testing"

	"goslab/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	handler := func(data *[]byte) error {
		called = true
		return nil
	}

	registry.Register(0x42, "test_command", handler)

	cmd, ok := registry.Get(0x42)
	if !ok {
		t.Fatal("Failed to retrieve registered command")
	}
	if cmd.Name != "test_command" {
		t.Errorf("Expected command name 'test_command', got '%s'", cmd.Name)
	}

	var data []byte
	if err := registry.Dispatch(0x42, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	if err := registry.Dispatch(0x99, &data); err == nil {
		t.Error("Expected error for unknown command ID")
	}
}

func TestCommandRegistryDuplicatePanics(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register(0x01, "first", func(data *[]byte) error { return nil })

	defer func() {
		if recover() == nil {
			t.Error("Registering a duplicate command ID did not panic")
		}
	}()
	registry.Register(0x01, "second", func(data *[]byte) error { return nil })
}

// newWiredInstrument builds an instrument over fake peripherals with its
// responses going to the returned scratch buffer.
func newWiredInstrument() (*Instrument, *rig, *protocol.ScratchOutput) {
	r := newRig()
	inst := NewInstrument(r.la)
	output := protocol.NewScratchOutput()
	transport := protocol.NewTransport(output, inst.Dispatch)
	inst.SetTransport(transport)
	return inst, r, output
}

// responsePayload unwraps the single framed response in out and returns its
// frame data (command ID, status, result fields).
func responsePayload(t *testing.T, out []byte) []byte {
	t.Helper()

	if len(out) < protocol.MessageLengthMin {
		t.Fatalf("No response frame written (%d bytes)", len(out))
	}
	msgLen := int(out[protocol.MessagePositionLen])
	if msgLen > len(out) {
		t.Fatalf("Frame length %d exceeds written %d bytes", msgLen, len(out))
	}
	if out[msgLen-1] != protocol.MessageValueSync {
		t.Fatalf("Response frame missing trailing sync byte: % x", out[:msgLen])
	}
	wantCRC := protocol.CRC16(out[:msgLen-protocol.MessageTrailerSize])
	gotCRC := uint16(out[msgLen-3])<<8 | uint16(out[msgLen-2])
	if gotCRC != wantCRC {
		t.Fatalf("Response CRC %04x, expected %04x", gotCRC, wantCRC)
	}
	return out[protocol.MessageHeaderSize : msgLen-protocol.MessageTrailerSize]
}

func TestCaptureCommandRoundTrip(t *testing.T) {
	inst, r, output := newWiredInstrument()

	scratch := protocol.NewScratchOutput()
	protocol.WriteUint8(scratch, 2)                  // channels
	protocol.WriteUint16(scratch, 100)               // events
	protocol.WriteUint8(scratch, uint8(EdgeRising))  // edge
	protocol.WriteUint8(scratch, uint8(ChannelNone)) // trigger
	data := scratch.Result()

	if err := inst.Dispatch(protocol.CmdCapture, &data); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	payload := responsePayload(t, output.Result())
	if len(payload) != 2 || payload[0] != protocol.CmdCapture || payload[1] != protocol.StatusSuccess {
		t.Errorf("Response payload = % x, expected capture/success", payload)
	}
	if !r.timer.running {
		t.Error("Capture command did not start the analyzer")
	}
}

func TestCaptureCommandReportsArgumentError(t *testing.T) {
	inst, r, output := newWiredInstrument()

	scratch := protocol.NewScratchOutput()
	protocol.WriteUint8(scratch, 5) // more channels than exist
	protocol.WriteUint16(scratch, 100)
	protocol.WriteUint8(scratch, uint8(EdgeRising))
	protocol.WriteUint8(scratch, uint8(ChannelNone))
	data := scratch.Result()

	// A rejected request is still a successfully handled command; the
	// failure travels in the status byte.
	if err := inst.Dispatch(protocol.CmdCapture, &data); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	payload := responsePayload(t, output.Result())
	if len(payload) != 2 || payload[1] != protocol.StatusArgumentError {
		t.Errorf("Response payload = % x, expected argument-error status", payload)
	}
	if len(r.log.calls) != 0 {
		t.Error("Rejected command touched peripherals")
	}
}

func TestCaptureCommandRejectsTruncatedPayload(t *testing.T) {
	inst, _, _ := newWiredInstrument()

	data := []byte{2, 100} // events field cut short
	if err := inst.Dispatch(protocol.CmdCapture, &data); err == nil {
		t.Error("Expected decode error for truncated payload")
	}
}

func TestStopCommand(t *testing.T) {
	inst, r, output := newWiredInstrument()

	var data []byte
	if err := inst.Dispatch(protocol.CmdStop, &data); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	payload := responsePayload(t, output.Result())
	if len(payload) != 2 || payload[0] != protocol.CmdStop || payload[1] != protocol.StatusSuccess {
		t.Errorf("Response payload = % x, expected stop/success", payload)
	}
	if r.timer.resets != 1 {
		t.Errorf("Stop command reset the timer %d times, expected 1", r.timer.resets)
	}
}

func TestGetInitialStatesCommand(t *testing.T) {
	inst, r, output := newWiredInstrument()

	r.pins.levels = 0b1010
	scratch := protocol.NewScratchOutput()
	protocol.WriteUint8(scratch, 4)
	protocol.WriteUint16(scratch, 40)
	protocol.WriteUint8(scratch, uint8(EdgeAny))
	protocol.WriteUint8(scratch, uint8(ChannelNone))
	data := scratch.Result()
	if err := inst.Dispatch(protocol.CmdCapture, &data); err != nil {
		t.Fatalf("Capture dispatch failed: %v", err)
	}
	output.Reset()

	var empty []byte
	if err := inst.Dispatch(protocol.CmdGetInitialStates, &empty); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	payload := responsePayload(t, output.Result())
	if len(payload) != 3 {
		t.Fatalf("Response payload = % x, expected ID, status, and states", payload)
	}
	if payload[0] != protocol.CmdGetInitialStates || payload[1] != protocol.StatusSuccess {
		t.Errorf("Response header = % x, expected get-initial-states/success", payload[:2])
	}
	if payload[2] != 0b1010 {
		t.Errorf("Reported states = %#04b, expected 0b1010", payload[2])
	}
}
