// Simulator target: runs the analyzer firmware over stdin/stdout with the
// in-memory peripherals, so the host CLI and protocol can be exercised
// without hardware. Point the host at a pty bridged to this process.
package main

import (
	"os"

	"goslab/core"
	"goslab/protocol"
	"goslab/sim"
)

func main() {
	dev := sim.New()
	la := core.NewLogicAnalyzer(dev.Peripherals())
	inst := core.NewInstrument(la)

	output := protocol.NewScratchOutput()
	transport := protocol.NewTransport(output, inst.Dispatch)
	inst.SetTransport(transport)

	flush := func() {
		if data := output.Result(); len(data) > 0 {
			_, _ = os.Stdout.Write(data)
			output.Reset()
		}
	}
	transport.SetFlushCallback(flush)

	input := protocol.NewFifoBuffer(512)
	buf := make([]byte, 256)

	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			input.Write(buf[:n])
			transport.Receive(input)
			flush()
		}
		if err != nil {
			return
		}
	}
}
