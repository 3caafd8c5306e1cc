package core

// DMASource selects what feeds a transfer channel.
type DMASource uint8

const (
	// DMASourceInputCapture transfers from the paired input-capture unit's
	// capture register.
	DMASourceInputCapture DMASource = iota
)

// DMADriver abstracts the four memory-transfer channels. Channel n copies
// each new value latched by input-capture unit n into its destination
// region and raises its interrupt after count transfers.
type DMADriver interface {
	// Configure prepares a transfer: count values from src into dst.
	// The transfer does not run until Start.
	Configure(ch Channel, count uint16, dst []uint16, src DMASource)

	// EnableInterrupt arms the channel's transfer-complete interrupt. The
	// callback runs in interrupt context.
	EnableInterrupt(ch Channel, fn CaptureCallback)

	// Start begins transferring.
	Start(ch Channel)

	// Reset aborts any transfer and returns the channel to idle.
	Reset(ch Channel)
}
