package core

// TimerID names a hardware timer instance.
type TimerID uint8

const (
	Timer1 TimerID = iota + 1
	Timer2
	Timer3
	Timer4
	Timer5
)

// TimerDriver is the shared hardware counter used as the common time base
// for all capture channels and as the sync pulse that gates their clocks.
// Platform code implements it over the real timer registers.
type TimerDriver interface {
	// SetPeriod sets the reload period. A period of one tick makes the
	// timer assert its sync output immediately after Start; zero means
	// free-running.
	SetPeriod(v uint16)

	// Start starts the counter.
	Start()

	// Reset stops the counter and returns it to its power-on state.
	Reset()
}
