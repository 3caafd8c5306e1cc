package core

// EventKind tags the interrupt-context events the orchestrator reacts to.
type EventKind uint8

const (
	// EventTriggerFromCapture: the trigger edge was seen by the trigger
	// channel's input-capture unit (rising or falling trigger).
	EventTriggerFromCapture EventKind = iota

	// EventTriggerFromChangeNotify: the change notifier saw a transition on
	// the trigger pin (any-edge trigger).
	EventTriggerFromChangeNotify

	// EventChannelComplete: a transfer channel finished moving its
	// configured event count.
	EventChannelComplete
)

// Event is one interrupt-context notification. Channel carries the
// originating channel; for change-notify triggers it is informational only.
type Event struct {
	Kind    EventKind
	Channel Channel
}
