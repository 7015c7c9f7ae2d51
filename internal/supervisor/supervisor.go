package supervisor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/actiond/internal/events"
	"github.com/smazurov/actiond/internal/logging"
)

var (
	// ErrStopped is returned by queries made after the supervisor shut down.
	ErrStopped = errors.New("supervisor stopped")
	// ErrUnknownAction is returned when a name is not in the registry.
	ErrUnknownAction = errors.New("unknown action")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("supervisor already running")
)

// Supervisor owns the action registry and handles every failure through one
// goroutine.
type Supervisor struct {
	runner        Runner
	attributor    Attributor
	clock         Clock
	backoff       *Backoff
	bus           *events.Bus
	onStateChange StateChangeCallback
	logger        logging.Logger

	// registry, touched only by the Run goroutine
	actions  []*Action
	byName   map[string]*Action
	payload  map[string]any
	stopping bool

	inbox   chan func()
	done    chan struct{}
	stopped chan struct{} // closed once the inbox is drained
	started atomic.Bool
	ctx     context.Context
	wg      sync.WaitGroup // in-flight launches
}

// New registers every cataloged action as pending.
func New(opts *Options) (*Supervisor, error) {
	if opts == nil || opts.Catalog == nil {
		return nil, errors.New("supervisor options with a catalog are required")
	}
	if opts.Runner == nil {
		return nil, errors.New("supervisor options with a runner are required")
	}

	s := &Supervisor{
		runner:        opts.Runner,
		attributor:    opts.Attributor,
		clock:         opts.Clock,
		bus:           opts.EventBus,
		onStateChange: opts.OnStateChange,
		logger:        opts.Logger,
		byName:        make(map[string]*Action, opts.Catalog.Len()),
		payload:       opts.Payload,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	if s.attributor == nil {
		s.attributor = TraceAttributor{}
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	if s.logger == nil {
		s.logger = logging.GetLogger("supervisor")
	}
	if s.payload == nil {
		s.payload = map[string]any{}
	}
	inboxSize := opts.InboxSize
	if inboxSize <= 0 {
		inboxSize = 64
	}
	s.inbox = make(chan func(), inboxSize)
	s.backoff = NewBackoff(loopClock{Clock: s.clock, post: s.post})

	for _, ca := range opts.Catalog.Actions() {
		a := newAction(ca)
		s.actions = append(s.actions, a)
		s.byName[a.Name] = a
	}

	return s, nil
}

// Run launches every registered action and handles failures until ctx is
// cancelled. On return every launched action has been torn down.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.ctx = ctx

	for _, a := range s.actions {
		s.launch(a)
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case fn := <-s.inbox:
			fn()
		}
	}
}

// Report funnels a failure into the supervisor. Safe for concurrent use;
// failures are handled one at a time in arrival order.
func (s *Supervisor) Report(f Failure) {
	s.post(func() {
		s.handleFailure(f)
	})
}

// Recover reports a panic of the calling goroutine as a failure, with the
// goroutine stack as frames. Use it as a deferred call: defer sup.Recover().
func (s *Supervisor) Recover() {
	if r := recover(); r != nil {
		s.Report(Failure{
			Kind:   KindException,
			Err:    fmt.Errorf("panic: %v", r),
			Frames: FramesFromStack(string(debug.Stack())),
		})
	}
}

// SetPayload replaces the payload handed to subsequent launches.
// Running actions keep the payload they were started with.
func (s *Supervisor) SetPayload(payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	s.post(func() {
		s.payload = payload
		s.logger.Info("Payload updated", "keys", len(payload))
	})
}

// Snapshot returns the supervision state of every action in registration order.
func (s *Supervisor) Snapshot(ctx context.Context) ([]Info, error) {
	reply := make(chan []Info, 1)
	if !s.post(func() {
		infos := make([]Info, len(s.actions))
		for i, a := range s.actions {
			infos[i] = a.info()
		}
		reply <- infos
	}) {
		return nil, ErrStopped
	}

	select {
	case infos := <-reply:
		return infos, nil
	case <-s.stopped:
		select {
		case infos := <-reply:
			return infos, nil
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status returns the supervision state of one action.
func (s *Supervisor) Status(ctx context.Context, name string) (Info, error) {
	infos, err := s.Snapshot(ctx)
	if err != nil {
		return Info{}, err
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
}

// post queues fn for the Run goroutine. It reports false once the supervisor
// has stopped.
func (s *Supervisor) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

// launch starts a new instance of a. The result comes back through the inbox
// tagged with the generation it was started for.
func (s *Supervisor) launch(a *Action) {
	a.generation++
	a.instanceID = uuid.NewString()
	gen := a.generation

	req := LaunchRequest{
		Action:     a.Name,
		InstanceID: a.instanceID,
		Payload:    maps.Clone(s.payload),
		Options: RunnerOptions{
			Cwd:    a.Root,
			Target: a.Target(),
		},
		Report: func(f Failure) {
			if f.Origin == "" {
				f.Origin = a.Name
			}
			s.Report(f)
		},
		Exited: func() {
			s.post(func() {
				s.handleExited(a, gen)
			})
		},
	}

	s.logger.Info("Running action", "action", a.Name, "generation", gen, "instance_id", req.InstanceID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		teardown, err := s.safeLaunch(req)
		if !s.post(func() {
			s.handleLaunched(a, gen, teardown, err)
		}) && teardown != nil {
			teardown()
		}
	}()
}

func (s *Supervisor) safeLaunch(req LaunchRequest) (teardown Teardown, err error) {
	defer func() {
		if r := recover(); r != nil {
			teardown = nil
			err = fmt.Errorf("runner panic: %v", r)
		}
	}()
	teardown, err = s.runner.Launch(s.ctx, req)
	if err != nil {
		return nil, &LaunchError{Action: req.Action, Err: err}
	}
	return teardown, nil
}

func (s *Supervisor) handleLaunched(a *Action, gen int, teardown Teardown, err error) {
	if err != nil {
		var launchErr *LaunchError
		if !errors.As(err, &launchErr) {
			err = &LaunchError{Action: a.Name, Err: err}
		}
	}

	stale := gen != a.generation || a.state.Terminal() || s.stopping
	if stale {
		if teardown != nil {
			s.invokeTeardown(a.Name, teardown)
		}
		return
	}

	if err != nil {
		// Launch failures never count toward backoff; the action stays unlaunched.
		a.lastErr = err
		s.logger.Error("Error occurred while running action", "action", a.Name, "error", err)
		events.Publish(s.bus, events.ActionLaunchFailedEvent{
			Action:    a.Name,
			Error:     err.Error(),
			Timestamp: s.timestamp(),
		})
		return
	}

	a.teardown = teardown
	a.launchedAt = s.clock.Now()
	s.setState(a, StateRunning, nil)
}

func (s *Supervisor) handleExited(a *Action, gen int) {
	if gen != a.generation || a.state != StateRunning {
		return
	}
	if a.teardown != nil {
		s.invokeTeardown(a.Name, a.teardown)
		a.teardown = nil
	}
	s.logger.Info("Action exited", "action", a.Name)
	s.setState(a, StateStopped, nil)
}

func (s *Supervisor) handleFailure(f Failure) {
	if s.stopping {
		return
	}

	if f.Kind == KindRejection || len(f.Frames) == 0 {
		s.logger.Warn("Unhandled rejection", "origin", f.Origin, "reason", errString(f.Err))
		events.Publish(s.bus, events.RejectionEvent{
			Origin:    f.Origin,
			Error:     errString(f.Err),
			Timestamp: s.timestamp(),
		})
		return
	}

	a := s.attributor.Attribute(f, s.actions)
	if a == nil {
		s.logger.Error("Unhandled error occurred while running action", "error", errString(f.Err))
		events.Publish(s.bus, events.FailureUnattributedEvent{
			Error:     errString(f.Err),
			Timestamp: s.timestamp(),
		})
		return
	}

	s.logger.Error("Unhandled error occurred while running action", "action", a.Name, "error", errString(f.Err))

	if a.state.Terminal() {
		s.logger.Debug("Ignoring failure of inactive action", "action", a.Name, "state", a.state)
		return
	}

	if a.teardown != nil {
		s.invokeTeardown(a.Name, a.teardown)
		a.teardown = nil
	}

	a.totalCrashes++
	a.lastCrashAt = s.clock.Now()
	a.lastErr = f.Err
	instanceID := a.instanceID
	s.setState(a, StateCrashed, f.Err)

	decision := s.backoff.ReportCrash(a)
	events.Publish(s.bus, events.ActionCrashedEvent{
		Action:        a.Name,
		InstanceID:    instanceID,
		WindowCrashes: s.backoff.Crashes(a),
		Decision:      decision.String(),
		Error:         errString(f.Err),
		Timestamp:     s.timestamp(),
	})

	switch decision {
	case Disable:
		s.logger.Error(fmt.Sprintf("Action %q crashed %d times in less than %s, and will not be run again",
			a.Name, MaxCrashes, CrashWindow), "action", a.Name)
		s.setState(a, StateDisabled, f.Err)
	case Restart:
		a.restarts++
		s.logger.Info("Restarting action", "action", a.Name, "restarts", a.restarts)
		s.launch(a)
	}
}

// shutdown tears down every action and settles in-flight launches.
func (s *Supervisor) shutdown() {
	s.stopping = true
	close(s.done)

	for _, a := range s.actions {
		s.backoff.Release(a)
		if a.teardown != nil {
			s.invokeTeardown(a.Name, a.teardown)
			a.teardown = nil
		}
		if a.state != StateDisabled && a.state != StateStopped {
			s.setState(a, StateStopped, nil)
		}
	}

	s.wg.Wait()

	// Posts that raced with close(done) may still sit in the inbox; run them
	// so late launch results get torn down.
	for {
		select {
		case fn := <-s.inbox:
			fn()
		default:
			close(s.stopped)
			s.logger.Info("Supervisor stopped", "actions", len(s.actions))
			return
		}
	}
}

func (s *Supervisor) invokeTeardown(name string, teardown Teardown) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Teardown panicked", "action", name, "panic", r)
		}
	}()
	teardown()
}

func (s *Supervisor) setState(a *Action, to State, err error) {
	from := a.state
	if from == to {
		return
	}
	a.state = to

	s.logger.Debug("Action state changed", "action", a.Name, "from", from, "to", to)

	events.Publish(s.bus, events.ActionStateChangedEvent{
		Action:     a.Name,
		InstanceID: a.instanceID,
		From:       string(from),
		To:         string(to),
		Error:      errString(err),
		Timestamp:  s.timestamp(),
	})

	if s.onStateChange != nil {
		s.onStateChange(a.Name, from, to, err)
	}
}

func (s *Supervisor) timestamp() string {
	return s.clock.Now().UTC().Format(time.RFC3339)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
