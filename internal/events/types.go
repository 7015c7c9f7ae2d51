package events

// Event type constants for kelindar/event.
const (
	TypeActionStateChanged uint32 = iota + 1
	TypeActionCrashed
	TypeActionLaunchFailed
	TypeFailureUnattributed
	TypeRejection
	TypePayloadReloaded
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ActionStateChangedEvent is published on every supervision state transition.
type ActionStateChangedEvent struct {
	Action     string `json:"action" example:"snips-weather" doc:"Action name"`
	InstanceID string `json:"instance_id,omitempty" doc:"Launch instance identifier"`
	From       string `json:"from" example:"running" doc:"Previous state"`
	To         string `json:"to" example:"crashed" doc:"New state"`
	Error      string `json:"error,omitempty" doc:"Error that caused the transition"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ActionStateChangedEvent.
func (e ActionStateChangedEvent) Type() uint32 { return TypeActionStateChanged }

// ActionCrashedEvent is published when a failure is attributed to an action
// and the backoff controller has decided what to do about it.
type ActionCrashedEvent struct {
	Action        string `json:"action" example:"snips-weather" doc:"Action name"`
	InstanceID    string `json:"instance_id,omitempty" doc:"Crashed instance identifier"`
	WindowCrashes int    `json:"window_crashes" example:"2" doc:"Crashes inside the current window"`
	Decision      string `json:"decision" example:"restart" doc:"restart or disable"`
	Error         string `json:"error" doc:"Failure message"`
	Timestamp     string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ActionCrashedEvent.
func (e ActionCrashedEvent) Type() uint32 { return TypeActionCrashed }

// ActionLaunchFailedEvent is published when a runner could not start an action.
type ActionLaunchFailedEvent struct {
	Action    string `json:"action" example:"snips-weather" doc:"Action name"`
	Error     string `json:"error" doc:"Launch error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ActionLaunchFailedEvent.
func (e ActionLaunchFailedEvent) Type() uint32 { return TypeActionLaunchFailed }

// FailureUnattributedEvent is published for failures no action could be blamed for.
type FailureUnattributedEvent struct {
	Error     string `json:"error" doc:"Failure message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FailureUnattributedEvent.
func (e FailureUnattributedEvent) Type() uint32 { return TypeFailureUnattributed }

// RejectionEvent is published for asynchronous rejections, which are only logged.
type RejectionEvent struct {
	Origin    string `json:"origin,omitempty" doc:"Action that reported the rejection, when known"`
	Error     string `json:"error" doc:"Rejection reason"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RejectionEvent.
func (e RejectionEvent) Type() uint32 { return TypeRejection }

// PayloadReloadedEvent is published when the configuration payload file changed
// and was accepted.
type PayloadReloadedEvent struct {
	Path      string `json:"path" doc:"Payload file path"`
	Keys      int    `json:"keys" doc:"Number of top-level keys"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PayloadReloadedEvent.
func (e PayloadReloadedEvent) Type() uint32 { return TypePayloadReloaded }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
