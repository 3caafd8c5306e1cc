package core

import (
	"goslab/protocol"
)

// Instrument binds a LogicAnalyzer to the command transport: it decodes
// command payloads, invokes the analyzer, and frames status responses.
type Instrument struct {
	la        *LogicAnalyzer
	registry  *CommandRegistry
	transport *protocol.Transport
}

// NewInstrument creates the command layer over la and registers the
// instrument's command set.
func NewInstrument(la *LogicAnalyzer) *Instrument {
	inst := &Instrument{
		la:       la,
		registry: NewCommandRegistry(),
	}

	inst.registry.Register(protocol.CmdCapture, "la_capture", inst.handleCapture)
	inst.registry.Register(protocol.CmdStop, "la_stop", inst.handleStop)
	inst.registry.Register(protocol.CmdGetInitialStates, "la_get_initial_states", inst.handleGetInitialStates)

	return inst
}

// SetTransport wires the transport used for responses. Set once at startup,
// after the transport has been constructed around Dispatch.
func (inst *Instrument) SetTransport(t *protocol.Transport) {
	inst.transport = t
}

// Dispatch is the transport's command handler.
func (inst *Instrument) Dispatch(cmdID uint8, data *[]byte) error {
	return inst.registry.Dispatch(cmdID, data)
}

// Analyzer returns the underlying orchestrator.
func (inst *Instrument) Analyzer() *LogicAnalyzer {
	return inst.la
}

// handleCapture decodes and runs a capture request.
// Payload: num_channels u8, events u16, edge u8, trigger u8.
func (inst *Instrument) handleCapture(data *[]byte) error {
	numChannels, err := protocol.ReadUint8(data)
	if err != nil {
		return err
	}
	events, err := protocol.ReadUint16(data)
	if err != nil {
		return err
	}
	edge, err := protocol.ReadUint8(data)
	if err != nil {
		return err
	}
	trigger, err := protocol.ReadUint8(data)
	if err != nil {
		return err
	}

	res := inst.la.Capture(numChannels, events, Edge(edge), Channel(trigger))
	inst.respond(protocol.CmdCapture, res, nil)
	return nil
}

// handleStop stops any running capture. Always succeeds.
func (inst *Instrument) handleStop(data *[]byte) error {
	res := inst.la.Stop()
	inst.respond(protocol.CmdStop, res, nil)
	return nil
}

// handleGetInitialStates reports the trigger-time pin snapshot.
// Response payload: status u8, states u8.
func (inst *Instrument) handleGetInitialStates(data *[]byte) error {
	states := inst.la.InitialStates()
	inst.respond(protocol.CmdGetInitialStates, ResultSuccess, func(output protocol.OutputBuffer) {
		protocol.WriteUint8(output, states)
	})
	return nil
}

func (inst *Instrument) respond(cmdID uint8, res Result, extra func(output protocol.OutputBuffer)) {
	if inst.transport == nil {
		return
	}
	inst.transport.SendResponse(cmdID, uint8(res), extra)
}
