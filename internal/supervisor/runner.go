package supervisor

import (
	"context"
	"fmt"
)

// Teardown stops a launched action and blocks until it is gone.
// Calling it after the action already exited is harmless.
type Teardown func()

// RunnerOptions tell a runner where the action lives.
type RunnerOptions struct {
	Cwd    string // action root directory
	Target string // absolute path of the entry point
}

// LaunchRequest carries everything a runner needs to start one action instance.
type LaunchRequest struct {
	Action     string
	InstanceID string
	Payload    map[string]any
	Options    RunnerOptions

	// Report funnels a failure of the launched task to the supervisor.
	// Failures without an Origin are tagged with Action.
	Report func(Failure)
	// Exited reports that the task finished on its own without failing.
	Exited func()
}

// Runner starts actions in isolation.
type Runner interface {
	// Launch starts the action and returns once it is running. Failures after
	// that point go through req.Report, never through the returned error.
	Launch(ctx context.Context, req LaunchRequest) (Teardown, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, req LaunchRequest) (Teardown, error)

// Launch implements Runner.
func (f RunnerFunc) Launch(ctx context.Context, req LaunchRequest) (Teardown, error) {
	return f(ctx, req)
}

// LaunchError wraps a failure to start an action.
type LaunchError struct {
	Action string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Action, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
