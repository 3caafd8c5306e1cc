package core

// ChangeNotifierDriver abstracts the change-notification interrupt source:
// a single unit that can watch any one pin for transitions in either
// direction. It is the only way to get an "any edge" interrupt, since the
// capture units interrupt on one direction at a time.
type ChangeNotifierDriver interface {
	// EnableInterrupt arms the notifier on the given channel's pin. The
	// callback runs in interrupt context.
	EnableInterrupt(ch Channel, fn CaptureCallback)

	// Reset disarms the notifier entirely.
	Reset()
}
