// Package sim provides behavioral in-memory implementations of the
// analyzer's peripherals: the shared timer, four input-capture units, the
// change notifier, four transfer channels, and the pin bank. It exists so
// the firmware core can run end to end without hardware, both under the
// simulator target and in tests.
//
// Like the real peripherals on a single-core target, the simulation is not
// safe for concurrent use; drive it from one goroutine.
package sim

import "goslab/core"

type icUnit struct {
	running    bool
	edge       core.Edge
	clock      core.ClockSource
	capture    uint16 // last latched timer count
	irqEnabled bool
	irqFn      core.CaptureCallback
}

type dmaChannel struct {
	configured bool
	running    bool
	count      uint16
	moved      uint16
	dst        []uint16
	irqFn      core.CaptureCallback
}

type notifier struct {
	armed bool
	ch    core.Channel
	fn    core.CaptureCallback
}

// Device models one simulated analyzer: pins, timer, capture units,
// notifier, and transfer channels, with enough introspection for tests.
type Device struct {
	levels uint8 // current pin levels, channel 1 in bit 0

	timerPeriod  uint16
	timerRunning bool
	timerResets  int
	ticks        uint16 // timer count; advanced by Tick while running

	ic  [core.MaxChannels]icUnit
	cn  notifier
	dma [core.MaxChannels]dmaChannel

	startOrder []core.Channel // transfer start calls, in order

	// captured records every value each transfer channel moved, surviving
	// the channel's reset so tests can inspect a finished capture.
	captured [core.MaxChannels][]uint16
}

// New creates a quiescent device with all pins low.
func New() *Device {
	return &Device{}
}

// Peripherals returns driver bindings for the firmware core.
func (d *Device) Peripherals() core.Peripherals {
	return core.Peripherals{
		Timer:        &timerPort{d},
		InputCapture: &capturePort{d},
		ChangeNotify: &notifyPort{d},
		DMA:          &transferPort{d},
		Pins:         &pinPort{d},
	}
}

// Tick advances the timer count by n while the timer runs. Tests call it
// between pin transitions to give edges distinct timestamps.
func (d *Device) Tick(n uint16) {
	if d.timerRunning {
		d.ticks += n
	}
}

// SetPin drives one analyzer pin and propagates the resulting edge: capture
// units latch (and feed running transfers), then edge interrupts fire, then
// the change notifier. Interrupt callbacks run synchronously, mirroring the
// run-to-completion interrupt model.
func (d *Device) SetPin(ch core.Channel, high bool) {
	if !ch.Valid() {
		return
	}
	bit := uint8(1) << uint(ch.Index())
	was := d.levels&bit != 0
	if was == high {
		return
	}
	if high {
		d.levels |= bit
	} else {
		d.levels &^= bit
	}

	rising := high

	unit := &d.ic[ch.Index()]
	if unit.running && edgeMatches(unit.edge, rising) {
		unit.capture = d.ticks
		dma := &d.dma[ch.Index()]
		if dma.running && dma.moved < dma.count {
			dma.dst[dma.moved] = unit.capture
			dma.moved++
			d.captured[ch.Index()] = append(d.captured[ch.Index()], unit.capture)
			if dma.moved == dma.count && dma.irqFn != nil {
				dma.irqFn(ch)
			}
		}
		if unit.irqEnabled && unit.irqFn != nil {
			unit.irqFn(ch)
		}
	}

	if d.cn.armed && d.cn.ch == ch && d.cn.fn != nil {
		d.cn.fn(ch)
	}
}

func edgeMatches(e core.Edge, rising bool) bool {
	switch e {
	case core.EdgeAny:
		return true
	case core.EdgeRising:
		return rising
	case core.EdgeFalling:
		return !rising
	default:
		return false
	}
}

// Inspection helpers for tests.

// TimerRunning reports whether the shared timer is counting.
func (d *Device) TimerRunning() bool { return d.timerRunning }

// TimerResets counts Reset calls on the shared timer.
func (d *Device) TimerResets() int { return d.timerResets }

// TimerPeriod returns the current reload period.
func (d *Device) TimerPeriod() uint16 { return d.timerPeriod }

// CaptureRunning reports whether channel ch's capture unit is armed.
func (d *Device) CaptureRunning(ch core.Channel) bool {
	return ch.Valid() && d.ic[ch.Index()].running
}

// CaptureInterruptArmed reports whether ch's edge interrupt is enabled.
func (d *Device) CaptureInterruptArmed(ch core.Channel) bool {
	return ch.Valid() && d.ic[ch.Index()].irqEnabled
}

// NotifierArmed reports whether the change notifier is armed.
func (d *Device) NotifierArmed() bool { return d.cn.armed }

// TransferRunning reports whether channel ch's transfer is running.
func (d *Device) TransferRunning(ch core.Channel) bool {
	return ch.Valid() && d.dma[ch.Index()].running
}

// Transferred returns every timestamp channel ch has moved, including in
// sessions that have already completed and been reset.
func (d *Device) Transferred(ch core.Channel) []uint16 {
	if !ch.Valid() {
		return nil
	}
	return d.captured[ch.Index()]
}

// StartOrder returns every transfer-start call seen, in call order.
func (d *Device) StartOrder() []core.Channel { return d.startOrder }

// timerPort implements core.TimerDriver.
type timerPort struct{ d *Device }

func (p *timerPort) SetPeriod(v uint16) { p.d.timerPeriod = v }

func (p *timerPort) Start() { p.d.timerRunning = true }

func (p *timerPort) Reset() {
	p.d.timerRunning = false
	p.d.timerPeriod = 0
	p.d.ticks = 0
	p.d.timerResets++
}

// capturePort implements core.InputCaptureDriver.
type capturePort struct{ d *Device }

func (p *capturePort) Start(ch core.Channel, edge core.Edge, clock core.ClockSource) {
	if !ch.Valid() {
		return
	}
	unit := &p.d.ic[ch.Index()]
	unit.running = true
	unit.edge = edge
	unit.clock = clock
	unit.capture = 0
}

func (p *capturePort) Reset(ch core.Channel) {
	if !ch.Valid() {
		return
	}
	p.d.ic[ch.Index()] = icUnit{}
}

func (p *capturePort) EnableInterrupt(ch core.Channel, fn core.CaptureCallback) {
	if !ch.Valid() {
		return
	}
	unit := &p.d.ic[ch.Index()]
	unit.irqEnabled = true
	unit.irqFn = fn
}

func (p *capturePort) DisableInterrupt(ch core.Channel) {
	if !ch.Valid() {
		return
	}
	unit := &p.d.ic[ch.Index()]
	unit.irqEnabled = false
	unit.irqFn = nil
}

// notifyPort implements core.ChangeNotifierDriver.
type notifyPort struct{ d *Device }

func (p *notifyPort) EnableInterrupt(ch core.Channel, fn core.CaptureCallback) {
	p.d.cn = notifier{armed: true, ch: ch, fn: fn}
}

func (p *notifyPort) Reset() {
	p.d.cn = notifier{}
}

// transferPort implements core.DMADriver.
type transferPort struct{ d *Device }

func (p *transferPort) Configure(ch core.Channel, count uint16, dst []uint16, src core.DMASource) {
	if !ch.Valid() {
		return
	}
	dma := &p.d.dma[ch.Index()]
	dma.configured = true
	dma.running = false
	dma.count = count
	dma.moved = 0
	dma.dst = dst
}

func (p *transferPort) EnableInterrupt(ch core.Channel, fn core.CaptureCallback) {
	if !ch.Valid() {
		return
	}
	p.d.dma[ch.Index()].irqFn = fn
}

func (p *transferPort) Start(ch core.Channel) {
	if !ch.Valid() {
		return
	}
	p.d.startOrder = append(p.d.startOrder, ch)
	dma := &p.d.dma[ch.Index()]
	if dma.configured {
		dma.running = true
	}
}

func (p *transferPort) Reset(ch core.Channel) {
	if !ch.Valid() {
		return
	}
	p.d.dma[ch.Index()] = dmaChannel{}
}

// pinPort implements core.PinReader.
type pinPort struct{ d *Device }

func (p *pinPort) States() uint8 { return p.d.levels }
