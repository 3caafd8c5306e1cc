// Capture orchestration for the logic analyzer instrument.
//
// A capture runs up to four channels at once. Each channel pairs a pin with
// an input-capture unit and a transfer channel: the unit latches the shared
// timer's count on every matching edge, the transfer channel copies each
// latched value into that channel's region of the sample buffer. Capture is
// armed idle-but-ready, then started by a trigger: immediately, on a
// rising/falling edge of the trigger pin (capture-unit interrupt), or on
// any edge of the trigger pin (change-notification interrupt).
package core

// Timer reload periods used by the trigger sequence.
const (
	// syncPeriod is the smallest nonzero reload value: the timer asserts
	// its sync output one tick after starting, which is what gates the
	// capture units' clocks on.
	syncPeriod = 1

	// freeRunPeriod lets the timer free-run once the sync pulse has done
	// its job.
	freeRunPeriod = 0
)

// Peripherals collects the hardware collaborators a LogicAnalyzer drives.
type Peripherals struct {
	Timer        TimerDriver
	InputCapture InputCaptureDriver
	ChangeNotify ChangeNotifierDriver
	DMA          DMADriver
	Pins         PinReader
}

// LogicAnalyzer owns one capture session at a time. numActive and
// initialStates are written from interrupt context (trigger and completion
// callbacks) and read from the main context; access goes through the
// interrupt-exclusion helpers.
type LogicAnalyzer struct {
	timer TimerDriver
	ic    InputCaptureDriver
	cn    ChangeNotifierDriver
	dma   DMADriver
	pins  PinReader

	// clock is the hardware timer shared by all capture units.
	clock TimerID

	buf [MaxSamples]uint16

	numActive     uint8 // channels still capturing; 0 means no session
	initialStates uint8 // pin snapshot taken at trigger time
}

// NewLogicAnalyzer creates an analyzer driving the given peripherals.
func NewLogicAnalyzer(p Peripherals) *LogicAnalyzer {
	return &LogicAnalyzer{
		timer: p.Timer,
		ic:    p.InputCapture,
		cn:    p.ChangeNotify,
		dma:   p.DMA,
		pins:  p.Pins,
		clock: Timer5,
	}
}

// Capture validates the request and arms a capture session. It returns once
// setup completes; captured data arrives asynchronously via the transfer
// channels. numChannels selects channels 1..numChannels; events is the total
// count across channels, divided evenly (remainder events are dropped). If a
// prior session is still active it is torn down first.
//
// Validation runs before any peripheral is touched, so a rejected request
// has no side effects.
func (la *LogicAnalyzer) Capture(numChannels uint8, events uint16, edge Edge, trigger Channel) Result {
	if numChannels == 0 || numChannels > MaxChannels {
		return ResultArgumentError
	}
	if edge == EdgeNone {
		return ResultArgumentError
	}
	if int(events) > MaxSamples {
		return ResultArgumentError
	}

	if la.activeChannels() > 0 {
		la.Stop()
	}

	la.setActiveChannels(numChannels)

	perChannel := events / uint16(numChannels)
	regions := partitionBuffer(la.buf[:], int(numChannels))

	for i := 0; i < int(numChannels); i++ {
		ch := Channel(i + 1)
		la.dma.Configure(ch, perChannel, regions[i], DMASourceInputCapture)
		// The completion interrupt is armed now; the transfer itself is
		// started by the trigger sequence.
		la.dma.EnableInterrupt(ch, la.onTransferComplete)
		// The capture unit runs from here on. Until the trigger starts the
		// shared timer its counter is held at zero, so it latches zeros
		// that are never transferred.
		la.ic.Start(ch, edge, clockSourceFor(la.clock))
	}

	la.configureTrigger(edge, trigger)
	return ResultSuccess
}

// Stop unconditionally disarms the trigger source and resets the timer and
// all four channel slots, whether or not they were part of the current
// session. Safe to call at any time, including with no capture running.
func (la *LogicAnalyzer) Stop() Result {
	la.cn.Reset()
	la.timer.Reset()

	for ch := Channel1; ch <= Channel4; ch++ {
		la.ic.Reset(ch)
		la.dma.Reset(ch)
	}

	la.setActiveChannels(0)
	return ResultSuccess
}

// InitialStates returns the pin levels snapshotted at the moment the
// trigger fired. Before any capture has triggered it returns the quiescent
// zero value; that is not an error.
func (la *LogicAnalyzer) InitialStates() uint8 {
	state := disableInterrupts()
	v := la.initialStates
	restoreInterrupts(state)
	return v
}

// configureTrigger picks the trigger path for this capture. No trigger pin
// means trigger now, synchronously. An any-edge trigger needs the change
// notifier, because a capture unit interrupts on one direction only; single
// direction triggers reuse the trigger channel's already-running capture
// unit.
func (la *LogicAnalyzer) configureTrigger(edge Edge, trigger Channel) {
	if trigger == ChannelNone {
		la.trigger()
		return
	}

	if edge == EdgeAny {
		la.cn.EnableInterrupt(trigger, la.onChangeNotify)
		return
	}

	la.ic.EnableInterrupt(trigger, la.onCaptureEdge)
}

func (la *LogicAnalyzer) onCaptureEdge(ch Channel) {
	la.HandleEvent(Event{Kind: EventTriggerFromCapture, Channel: ch})
}

func (la *LogicAnalyzer) onChangeNotify(ch Channel) {
	la.HandleEvent(Event{Kind: EventTriggerFromChangeNotify, Channel: ch})
}

func (la *LogicAnalyzer) onTransferComplete(ch Channel) {
	la.HandleEvent(Event{Kind: EventChannelComplete, Channel: ch})
}

// HandleEvent is the single entry point for interrupt-context events. Each
// event runs to completion without blocking; on a single-core target that
// gives it exclusive access to session state while it executes. Trigger
// events disarm their own source first, so the trigger fires exactly once.
func (la *LogicAnalyzer) HandleEvent(ev Event) {
	switch ev.Kind {
	case EventTriggerFromCapture:
		la.ic.DisableInterrupt(ev.Channel)
		la.trigger()
	case EventTriggerFromChangeNotify:
		la.cn.Reset()
		la.trigger()
	case EventChannelComplete:
		la.completeChannel(ev.Channel)
	}
}

// trigger is the time-critical start sequence. Exact order:
//
//  1. give the timer a one-tick period and start it, emitting the sync
//     pulse that gates the capture units' clocks on;
//  2. snapshot the pin levels (this is the value InitialStates reports);
//  3. start the active transfer channels, highest channel first;
//  4. restore the free-running period; the sync pulse is only needed once.
//
// Transfer channels cannot be started as one atomic operation. Edges
// between timer start and a channel's transfer start stay latched in the
// capture register, but a latched value can be overwritten before that
// transfer starts; this race is accepted. Starting the transfers before the
// timer would instead copy spurious zeros into the sample buffer.
func (la *LogicAnalyzer) trigger() {
	la.timer.SetPeriod(syncPeriod)
	la.timer.Start()
	la.setInitialStates(la.pins.States())

	// Unrolled descending starts rather than a counted loop: every
	// instruction between the first and last start adds skew between the
	// channels' first transfers.
	switch la.activeChannels() {
	case 4:
		la.dma.Start(Channel4)
		fallthrough
	case 3:
		la.dma.Start(Channel3)
		fallthrough
	case 2:
		la.dma.Start(Channel2)
		fallthrough
	case 1:
		la.dma.Start(Channel1)
	}

	la.timer.SetPeriod(freeRunPeriod)
}

// completeChannel tears down one finished channel. Runs in interrupt
// context. The shared timer is reset only by whichever channel finishes
// last; a stray completion on an already-idle session must not reset it
// again.
func (la *LogicAnalyzer) completeChannel(ch Channel) {
	la.dma.Reset(ch)
	la.ic.Reset(ch)

	remaining, live := la.releaseChannel()
	if live && remaining == 0 {
		la.timer.Reset()
	}
}

// clockSourceFor maps the shared timer to the capture units' clock select.
// Only timer 1 has a direct input; everything else routes through the
// peripheral clock gated by the timer's sync output.
func clockSourceFor(t TimerID) ClockSource {
	if t == Timer1 {
		return ClockTimer1
	}
	return ClockPeripheral
}

func (la *LogicAnalyzer) activeChannels() uint8 {
	state := disableInterrupts()
	n := la.numActive
	restoreInterrupts(state)
	return n
}

func (la *LogicAnalyzer) setActiveChannels(n uint8) {
	state := disableInterrupts()
	la.numActive = n
	restoreInterrupts(state)
}

// releaseChannel counts one channel out of the session. It returns how
// many remain and whether there was a live session to count down from; a
// completion arriving after an explicit Stop must not wrap the counter.
func (la *LogicAnalyzer) releaseChannel() (remaining uint8, live bool) {
	state := disableInterrupts()
	live = la.numActive > 0
	if live {
		la.numActive--
	}
	remaining = la.numActive
	restoreInterrupts(state)
	return remaining, live
}

func (la *LogicAnalyzer) setInitialStates(v uint8) {
	state := disableInterrupts()
	la.initialStates = v
	restoreInterrupts(state)
}
