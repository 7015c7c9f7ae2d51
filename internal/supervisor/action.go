package supervisor

import (
	"time"

	"github.com/smazurov/actiond/internal/catalog"
)

// Action is a registry entry: a cataloged action plus its supervision state.
// Fields other than the embedded catalog.Action belong to the supervisor
// goroutine.
type Action struct {
	catalog.Action

	state      State
	teardown   Teardown
	window     *crashWindow
	generation int
	instanceID string

	restarts     int
	totalCrashes int
	launchedAt   time.Time
	lastCrashAt  time.Time
	lastErr      error
}

func newAction(a catalog.Action) *Action {
	return &Action{Action: a, state: StatePending}
}

func (a *Action) info() Info {
	info := Info{
		Name:         a.Name,
		Version:      a.Version,
		Root:         a.Root,
		Target:       a.Target(),
		State:        a.state,
		InstanceID:   a.instanceID,
		Generation:   a.generation,
		RestartCount: a.restarts,
		TotalCrashes: a.totalCrashes,
		LaunchedAt:   a.launchedAt,
		LastCrashAt:  a.lastCrashAt,
		LastError:    a.lastErr,
	}
	if a.window != nil {
		info.WindowCrashes = a.window.count
	}
	return info
}
