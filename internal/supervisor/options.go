package supervisor

import (
	"github.com/smazurov/actiond/internal/catalog"
	"github.com/smazurov/actiond/internal/events"
	"github.com/smazurov/actiond/internal/logging"
)

// StateChangeCallback is called when an action changes state.
// It runs on the supervisor goroutine and must not block.
type StateChangeCallback func(name string, from, to State, err error)

// Options configures a Supervisor.
type Options struct {
	// Catalog lists the actions to launch, in registration order (required).
	Catalog *catalog.Catalog

	// Runner starts actions (required).
	Runner Runner

	// Attributor maps failures to actions. Defaults to TraceAttributor.
	Attributor Attributor

	// Payload is the configuration object handed to every launch (optional).
	Payload map[string]any

	// Clock drives crash window expiry. Defaults to RealClock.
	Clock Clock

	// EventBus receives lifecycle events (optional).
	EventBus *events.Bus

	// OnStateChange is called on every state transition (optional).
	OnStateChange StateChangeCallback

	// Logger for supervisor operations. Defaults to the "supervisor" module logger.
	Logger logging.Logger

	// InboxSize is the buffer of the supervisor inbox. Defaults to 64.
	InboxSize int
}
