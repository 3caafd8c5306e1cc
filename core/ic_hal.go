package core

// ClockSource selects what clocks an input-capture unit's counter.
type ClockSource uint8

const (
	// ClockTimer1 clocks the unit directly from timer 1.
	ClockTimer1 ClockSource = iota

	// ClockPeripheral clocks the unit from the peripheral clock, gated by
	// the sync output of the shared timer.
	ClockPeripheral
)

// CaptureCallback is invoked from interrupt context with the channel whose
// unit fired. It must run to completion without blocking.
type CaptureCallback func(Channel)

// InputCaptureDriver abstracts the four input-capture units. Each unit
// snapshots its counter into a capture register when the configured edge
// occurs on its pin.
type InputCaptureDriver interface {
	// Start arms the unit: from now on every matching edge latches a
	// timestamp into the unit's capture register.
	Start(ch Channel, edge Edge, clock ClockSource)

	// Reset returns the unit to idle and disarms any interrupt enabled on
	// it.
	Reset(ch Channel)

	// EnableInterrupt arms the unit's edge interrupt. The callback runs in
	// interrupt context.
	EnableInterrupt(ch Channel, fn CaptureCallback)

	// DisableInterrupt disarms the unit's edge interrupt without touching
	// the capture configuration.
	DisableInterrupt(ch Channel)
}
