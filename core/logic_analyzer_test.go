package core

import (
	"fmt"
	"testing"
)

// callLog records peripheral calls in order so tests can assert the exact
// trigger sequence.
type callLog struct {
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) index(t *testing.T, call string) int {
	t.Helper()
	for i, c := range l.calls {
		if c == call {
			return i
		}
	}
	t.Fatalf("call %q not recorded; log: %v", call, l.calls)
	return -1
}

func (l *callLog) contains(call string) bool {
	for _, c := range l.calls {
		if c == call {
			return true
		}
	}
	return false
}

type fakeTimer struct {
	log     *callLog
	periods []uint16
	running bool
	resets  int
}

func (f *fakeTimer) SetPeriod(v uint16) {
	f.periods = append(f.periods, v)
	f.log.add("timer.SetPeriod(%d)", v)
}

func (f *fakeTimer) Start() {
	f.running = true
	f.log.add("timer.Start")
}

func (f *fakeTimer) Reset() {
	f.running = false
	f.resets++
	f.log.add("timer.Reset")
}

type fakeCapture struct {
	log     *callLog
	running [MaxChannels]bool
	edges   [MaxChannels]Edge
	clocks  [MaxChannels]ClockSource
	armed   [MaxChannels]bool
	irq     [MaxChannels]CaptureCallback
}

func (f *fakeCapture) Start(ch Channel, edge Edge, clock ClockSource) {
	f.running[ch.Index()] = true
	f.edges[ch.Index()] = edge
	f.clocks[ch.Index()] = clock
	f.log.add("ic.Start(%d)", ch)
}

func (f *fakeCapture) Reset(ch Channel) {
	f.running[ch.Index()] = false
	f.armed[ch.Index()] = false
	f.irq[ch.Index()] = nil
	f.log.add("ic.Reset(%d)", ch)
}

func (f *fakeCapture) EnableInterrupt(ch Channel, fn CaptureCallback) {
	f.armed[ch.Index()] = true
	f.irq[ch.Index()] = fn
	f.log.add("ic.EnableInterrupt(%d)", ch)
}

func (f *fakeCapture) DisableInterrupt(ch Channel) {
	f.armed[ch.Index()] = false
	f.log.add("ic.DisableInterrupt(%d)", ch)
}

type fakeNotifier struct {
	log    *callLog
	armed  bool
	ch     Channel
	fn     CaptureCallback
	resets int
}

func (f *fakeNotifier) EnableInterrupt(ch Channel, fn CaptureCallback) {
	f.armed = true
	f.ch = ch
	f.fn = fn
	f.log.add("cn.EnableInterrupt(%d)", ch)
}

func (f *fakeNotifier) Reset() {
	f.armed = false
	f.fn = nil
	f.resets++
	f.log.add("cn.Reset")
}

type fakeDMA struct {
	log        *callLog
	configured [MaxChannels]bool
	counts     [MaxChannels]uint16
	regions    [MaxChannels][]uint16
	running    [MaxChannels]bool
	irq        [MaxChannels]CaptureCallback
	startOrder []Channel
}

func (f *fakeDMA) Configure(ch Channel, count uint16, dst []uint16, src DMASource) {
	i := ch.Index()
	f.configured[i] = true
	f.counts[i] = count
	f.regions[i] = dst
	f.running[i] = false
	f.log.add("dma.Configure(%d)", ch)
}

func (f *fakeDMA) EnableInterrupt(ch Channel, fn CaptureCallback) {
	f.irq[ch.Index()] = fn
	f.log.add("dma.EnableInterrupt(%d)", ch)
}

func (f *fakeDMA) Start(ch Channel) {
	f.running[ch.Index()] = true
	f.startOrder = append(f.startOrder, ch)
	f.log.add("dma.Start(%d)", ch)
}

func (f *fakeDMA) Reset(ch Channel) {
	i := ch.Index()
	f.configured[i] = false
	f.counts[i] = 0
	f.regions[i] = nil
	f.running[i] = false
	f.irq[i] = nil
	f.log.add("dma.Reset(%d)", ch)
}

type fakePins struct {
	levels uint8
}

func (f *fakePins) States() uint8 { return f.levels }

// rig bundles an analyzer with recording fakes for all its peripherals.
type rig struct {
	log   *callLog
	timer *fakeTimer
	ic    *fakeCapture
	cn    *fakeNotifier
	dma   *fakeDMA
	pins  *fakePins
	la    *LogicAnalyzer
}

func newRig() *rig {
	log := &callLog{}
	r := &rig{
		log:   log,
		timer: &fakeTimer{log: log},
		ic:    &fakeCapture{log: log},
		cn:    &fakeNotifier{log: log},
		dma:   &fakeDMA{log: log},
		pins:  &fakePins{},
	}
	r.la = NewLogicAnalyzer(Peripherals{
		Timer:        r.timer,
		InputCapture: r.ic,
		ChangeNotify: r.cn,
		DMA:          r.dma,
		Pins:         r.pins,
	})
	return r
}

func TestCaptureRejectsBadArguments(t *testing.T) {
	testCases := []struct {
		name     string
		channels uint8
		events   uint16
		edge     Edge
		trigger  Channel
	}{
		{"zero channels", 0, 100, EdgeRising, ChannelNone},
		{"five channels", 5, 100, EdgeRising, ChannelNone},
		{"no edge", 2, 100, EdgeNone, ChannelNone},
		{"too many events", 1, MaxSamples + 1, EdgeRising, ChannelNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRig()

			res := r.la.Capture(tc.channels, tc.events, tc.edge, tc.trigger)
			if res != ResultArgumentError {
				t.Errorf("Expected ResultArgumentError, got %d", res)
			}
			// A rejected request must leave the hardware untouched.
			if len(r.log.calls) != 0 {
				t.Errorf("Rejected request touched peripherals: %v", r.log.calls)
			}
		})
	}
}

func TestCaptureImmediateTriggerSequence(t *testing.T) {
	r := newRig()
	r.pins.levels = 0b0101

	res := r.la.Capture(4, 1000, EdgeRising, ChannelNone)
	if res != ResultSuccess {
		t.Fatalf("Capture failed with result %d", res)
	}

	if !r.timer.running {
		t.Error("Timer not running after untriggered capture")
	}
	if got := r.la.InitialStates(); got != 0b0101 {
		t.Errorf("InitialStates = %#04b, expected 0b0101", got)
	}
	for ch := Channel1; ch <= Channel4; ch++ {
		if !r.dma.running[ch.Index()] {
			t.Errorf("Transfer channel %d not running", ch)
		}
		if !r.ic.running[ch.Index()] {
			t.Errorf("Capture unit %d not running", ch)
		}
	}

	// Transfers start highest channel first.
	wantOrder := []Channel{Channel4, Channel3, Channel2, Channel1}
	if len(r.dma.startOrder) != len(wantOrder) {
		t.Fatalf("Expected %d transfer starts, got %v", len(wantOrder), r.dma.startOrder)
	}
	for i, ch := range wantOrder {
		if r.dma.startOrder[i] != ch {
			t.Errorf("Start %d: expected channel %d, got %d", i, ch, r.dma.startOrder[i])
		}
	}

	// Full trigger sequence: one-tick period, timer start, transfer starts,
	// then the free-running period.
	syncIdx := r.log.index(t, "timer.SetPeriod(1)")
	startIdx := r.log.index(t, "timer.Start")
	freeIdx := r.log.index(t, "timer.SetPeriod(0)")
	if syncIdx > startIdx {
		t.Error("Timer started before the sync period was set")
	}
	for ch := Channel1; ch <= Channel4; ch++ {
		dmaIdx := r.log.index(t, fmt.Sprintf("dma.Start(%d)", ch))
		if dmaIdx < startIdx || dmaIdx > freeIdx {
			t.Errorf("Transfer %d started outside the trigger window (log: %v)", ch, r.log.calls)
		}
	}

	if got := r.timer.periods; len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("Timer periods = %v, expected [1 0]", got)
	}
}

func TestCapturePartitionsBufferEvenly(t *testing.T) {
	r := newRig()

	res := r.la.Capture(2, 100, EdgeRising, ChannelNone)
	if res != ResultSuccess {
		t.Fatalf("Capture failed with result %d", res)
	}

	// 100 events over 2 channels is 50 apiece.
	if r.dma.counts[0] != 50 || r.dma.counts[1] != 50 {
		t.Errorf("Transfer counts = %d, %d, expected 50 each", r.dma.counts[0], r.dma.counts[1])
	}

	// Each channel owns half the sample buffer, back to back.
	half := MaxSamples / 2
	if len(r.dma.regions[0]) != half || len(r.dma.regions[1]) != half {
		t.Fatalf("Region lengths = %d, %d, expected %d each",
			len(r.dma.regions[0]), len(r.dma.regions[1]), half)
	}
	if &r.dma.regions[0][0] != &r.la.buf[0] {
		t.Error("Channel 1 region does not start at the buffer start")
	}
	if &r.dma.regions[1][0] != &r.la.buf[half] {
		t.Error("Channel 2 region does not start at the buffer midpoint")
	}
}

func TestCaptureTruncatesOddEventCounts(t *testing.T) {
	r := newRig()

	if res := r.la.Capture(3, 100, EdgeRising, ChannelNone); res != ResultSuccess {
		t.Fatalf("Capture failed with result %d", res)
	}

	for i := 0; i < 3; i++ {
		if r.dma.counts[i] != 33 {
			t.Errorf("Channel %d count = %d, expected 33", i+1, r.dma.counts[i])
		}
	}
	if r.dma.configured[3] {
		t.Error("Channel 4 configured in a 3-channel capture")
	}
}

func TestCaptureEdgeTriggerDefersStart(t *testing.T) {
	r := newRig()

	res := r.la.Capture(2, 100, EdgeFalling, Channel2)
	if res != ResultSuccess {
		t.Fatalf("Capture failed with result %d", res)
	}

	// Armed but not started: the trigger edge has not arrived.
	if r.timer.running {
		t.Error("Timer running before trigger edge")
	}
	if r.dma.running[0] || r.dma.running[1] {
		t.Error("Transfers running before trigger edge")
	}
	if !r.ic.armed[Channel2.Index()] {
		t.Fatal("Trigger channel's capture interrupt not armed")
	}
	if r.cn.armed {
		t.Error("Change notifier armed for a single-direction trigger")
	}

	// Deliver the trigger edge.
	r.ic.irq[Channel2.Index()](Channel2)

	if !r.timer.running {
		t.Error("Timer not running after trigger edge")
	}
	if !r.dma.running[0] || !r.dma.running[1] {
		t.Error("Transfers not running after trigger edge")
	}
	// The trigger source must be disarmed before the start sequence runs, so
	// a second edge cannot re-trigger.
	disIdx := r.log.index(t, "ic.DisableInterrupt(2)")
	syncIdx := r.log.index(t, "timer.SetPeriod(1)")
	if disIdx > syncIdx {
		t.Error("Trigger interrupt disarmed after the start sequence began")
	}
	if r.ic.armed[Channel2.Index()] {
		t.Error("Trigger interrupt still armed after firing")
	}
}

func TestCaptureAnyEdgeUsesChangeNotifier(t *testing.T) {
	r := newRig()

	res := r.la.Capture(4, 400, EdgeAny, Channel3)
	if res != ResultSuccess {
		t.Fatalf("Capture failed with result %d", res)
	}

	if !r.cn.armed || r.cn.ch != Channel3 {
		t.Fatalf("Change notifier not armed on channel 3 (armed=%v ch=%d)", r.cn.armed, r.cn.ch)
	}
	for ch := Channel1; ch <= Channel4; ch++ {
		if r.ic.armed[ch.Index()] {
			t.Errorf("Capture interrupt %d armed for an any-edge trigger", ch)
		}
	}
	if r.timer.running {
		t.Error("Timer running before trigger edge")
	}

	r.cn.fn(Channel3)

	if !r.timer.running {
		t.Error("Timer not running after change notification")
	}
	// The notifier is reset before the start sequence.
	resetIdx := r.log.index(t, "cn.Reset")
	syncIdx := r.log.index(t, "timer.SetPeriod(1)")
	if resetIdx > syncIdx {
		t.Error("Change notifier reset after the start sequence began")
	}
	if r.cn.armed {
		t.Error("Change notifier still armed after firing")
	}
}

func TestChannelCompletionIsIndependent(t *testing.T) {
	r := newRig()

	if res := r.la.Capture(4, 4000, EdgeRising, ChannelNone); res != ResultSuccess {
		t.Fatalf("Capture failed")
	}

	finish := func(ch Channel) {
		r.la.HandleEvent(Event{Kind: EventChannelComplete, Channel: ch})
	}

	// Channels complete out of order; each tears down only itself.
	finish(Channel2)
	if r.ic.running[Channel2.Index()] || r.dma.configured[Channel2.Index()] {
		t.Error("Channel 2 not torn down after completion")
	}
	if !r.ic.running[Channel1.Index()] || !r.ic.running[Channel3.Index()] {
		t.Error("Completion of channel 2 disturbed other channels")
	}
	if r.timer.resets != 0 {
		t.Error("Timer reset before all channels completed")
	}

	finish(Channel4)
	finish(Channel1)
	if r.timer.resets != 0 {
		t.Error("Timer reset with one channel still capturing")
	}

	finish(Channel3)
	if r.timer.resets != 1 {
		t.Errorf("Timer resets = %d after last completion, expected 1", r.timer.resets)
	}

	// A stray completion on the now-idle session must not reset again.
	finish(Channel3)
	if r.timer.resets != 1 {
		t.Errorf("Stray completion reset the timer again (resets=%d)", r.timer.resets)
	}
}

func TestStopResetsAllChannels(t *testing.T) {
	r := newRig()

	if res := r.la.Capture(2, 100, EdgeRising, ChannelNone); res != ResultSuccess {
		t.Fatalf("Capture failed")
	}

	if res := r.la.Stop(); res != ResultSuccess {
		t.Fatalf("Stop failed with result %d", res)
	}

	if r.timer.running {
		t.Error("Timer still running after Stop")
	}
	// All four slots reset, including the two that were never active.
	for ch := Channel1; ch <= Channel4; ch++ {
		if !r.log.contains(fmt.Sprintf("ic.Reset(%d)", ch)) {
			t.Errorf("Stop did not reset capture unit %d", ch)
		}
		if !r.log.contains(fmt.Sprintf("dma.Reset(%d)", ch)) {
			t.Errorf("Stop did not reset transfer channel %d", ch)
		}
	}
	if r.cn.resets == 0 {
		t.Error("Stop did not reset the change notifier")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := newRig()

	if res := r.la.Stop(); res != ResultSuccess {
		t.Errorf("Stop on idle analyzer returned %d", res)
	}
	if res := r.la.Stop(); res != ResultSuccess {
		t.Errorf("Second Stop returned %d", res)
	}

	// Completions arriving after Stop must not reset the timer again.
	resets := r.timer.resets
	r.la.HandleEvent(Event{Kind: EventChannelComplete, Channel: Channel1})
	if r.timer.resets != resets {
		t.Error("Post-stop completion reset the timer")
	}
}

func TestCaptureAbortsPreviousSession(t *testing.T) {
	r := newRig()

	if res := r.la.Capture(4, 1000, EdgeRising, ChannelNone); res != ResultSuccess {
		t.Fatalf("First capture failed")
	}

	if res := r.la.Capture(1, 100, EdgeFalling, ChannelNone); res != ResultSuccess {
		t.Fatalf("Second capture failed")
	}

	if r.timer.resets == 0 {
		t.Error("Starting over an active session did not tear it down")
	}
	if got := r.ic.edges[0]; got != EdgeFalling {
		t.Errorf("Channel 1 edge = %s, expected falling", got)
	}
	for ch := Channel2; ch <= Channel4; ch++ {
		if r.ic.running[ch.Index()] {
			t.Errorf("Channel %d still running from the aborted session", ch)
		}
	}
}

func TestInvalidCaptureLeavesSessionRunning(t *testing.T) {
	r := newRig()

	if res := r.la.Capture(2, 100, EdgeRising, ChannelNone); res != ResultSuccess {
		t.Fatalf("Capture failed")
	}

	// Validation runs before the active session is touched.
	if res := r.la.Capture(0, 100, EdgeRising, ChannelNone); res != ResultArgumentError {
		t.Fatalf("Invalid capture returned %d", res)
	}
	if !r.timer.running {
		t.Error("Invalid request stopped the running session")
	}
	if r.timer.resets != 0 {
		t.Error("Invalid request reset the timer")
	}
}

func TestInitialStatesSnapshotAtTrigger(t *testing.T) {
	r := newRig()
	r.pins.levels = 0b1111

	if res := r.la.Capture(1, 100, EdgeRising, Channel1); res != ResultSuccess {
		t.Fatalf("Capture failed")
	}

	// Nothing snapshotted until the trigger fires.
	if got := r.la.InitialStates(); got != 0 {
		t.Errorf("InitialStates before trigger = %#04b, expected 0", got)
	}

	r.pins.levels = 0b0011
	r.ic.irq[Channel1.Index()](Channel1)

	if got := r.la.InitialStates(); got != 0b0011 {
		t.Errorf("InitialStates = %#04b, expected the trigger-time levels 0b0011", got)
	}
}

func TestCaptureUnitClockSelection(t *testing.T) {
	if got := clockSourceFor(Timer1); got != ClockTimer1 {
		t.Errorf("Timer 1 should drive the capture units directly, got %d", got)
	}
	if got := clockSourceFor(Timer5); got != ClockPeripheral {
		t.Errorf("Timer 5 should gate the peripheral clock, got %d", got)
	}

	r := newRig()
	if res := r.la.Capture(1, 10, EdgeRising, ChannelNone); res != ResultSuccess {
		t.Fatalf("Capture failed")
	}
	if r.ic.clocks[0] != ClockPeripheral {
		t.Errorf("Capture unit clock = %d, expected peripheral clock", r.ic.clocks[0])
	}
}
