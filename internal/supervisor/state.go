package supervisor

import "time"

// State represents the launch state of a supervised action.
type State string

// Action states.
const (
	StatePending  State = "pending"  // Not launched yet, or launch failed
	StateRunning  State = "running"  // Launched, teardown handle held
	StateCrashed  State = "crashed"  // Failure attributed, restart pending
	StateDisabled State = "disabled" // Crashed too often, never relaunched
	StateStopped  State = "stopped"  // Shut down or exited cleanly
)

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateDisabled || s == StateStopped
}

// Info is a point-in-time copy of an action's supervision state.
type Info struct {
	Name         string
	Version      string
	Root         string
	Target       string
	State        State
	InstanceID   string
	Generation   int
	RestartCount int
	// WindowCrashes counts crashes in the open crash window, 0 when none is open.
	WindowCrashes int
	TotalCrashes  int
	LaunchedAt    time.Time
	LastCrashAt   time.Time
	LastError     error
}
