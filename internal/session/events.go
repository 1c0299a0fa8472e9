package session

import "github.com/postlens/agent/internal/types"

// CommandKind discriminates commands sent to the Manager from outside the
// state machine (the control surface).
type CommandKind int

const (
	// CommandSetEnabled toggles the master detection switch (spec §4.8).
	// The flag is owned by the Manager, not the control surface (spec §9,
	// "implicit singletons").
	CommandSetEnabled CommandKind = iota
)

// Command flows from the control surface to the session Manager.
type Command struct {
	Kind    CommandKind
	Enabled bool
}

// EventKind discriminates session lifecycle notifications.
type EventKind int

const (
	EventArmed EventKind = iota
	EventCapturing
	EventResolved
	EventTornDown
)

func (k EventKind) String() string {
	switch k {
	case EventArmed:
		return "armed"
	case EventCapturing:
		return "capturing"
	case EventResolved:
		return "resolved"
	case EventTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// Event is a single state transition, published to an optional telemetry
// sink (SPEC_FULL §3/§4) and otherwise unused by the state machine itself.
type Event struct {
	Kind    EventKind
	BaseID  string
	Verdict *types.DetectionVerdict // set only for EventResolved
}
