package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/actiond/internal/catalog"
	"github.com/smazurov/actiond/internal/events"
)

// fakeRunner records launches and teardowns.
type fakeRunner struct {
	mu        sync.Mutex
	launches  []LaunchRequest
	teardowns map[string]int // by instance ID
	failures  map[string]error
	gates     map[string]chan struct{} // blocks the next launch of an action
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		teardowns: make(map[string]int),
		failures:  make(map[string]error),
		gates:     make(map[string]chan struct{}),
	}
}

func (r *fakeRunner) Launch(_ context.Context, req LaunchRequest) (Teardown, error) {
	r.mu.Lock()
	r.launches = append(r.launches, req)
	err := r.failures[req.Action]
	gate := r.gates[req.Action]
	delete(r.gates, req.Action)
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return func() {
		r.mu.Lock()
		r.teardowns[req.InstanceID]++
		r.mu.Unlock()
	}, nil
}

func (r *fakeRunner) launchCount(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.launches {
		if req.Action == action {
			n++
		}
	}
	return n
}

func (r *fakeRunner) request(i int) LaunchRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.launches[i]
}

func (r *fakeRunner) teardownCount(instanceID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teardowns[instanceID]
}

type harness struct {
	t      *testing.T
	sup    *Supervisor
	runner *fakeRunner
	clock  *fakeClock
	bus    *events.Bus
	cancel context.CancelFunc
	done   chan struct{}
}

func newHarness(t *testing.T, mutate func(*Options), actions ...catalog.Action) *harness {
	t.Helper()
	if len(actions) == 0 {
		actions = []catalog.Action{{Name: "weather", Main: "index.js", Root: "/actions/weather"}}
	}
	cat, _ := catalog.New(actions...)

	h := &harness{
		t:      t,
		runner: newFakeRunner(),
		clock:  newFakeClock(),
		bus:    events.New(),
		done:   make(chan struct{}),
	}
	opts := &Options{
		Catalog:  cat,
		Runner:   h.runner,
		Clock:    h.clock,
		EventBus: h.bus,
		Payload:  map[string]any{"locale": "en_US"},
	}
	if mutate != nil {
		mutate(opts)
	}

	sup, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.sup = sup
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		if err := h.sup.Run(ctx); err != nil {
			h.t.Errorf("Run failed: %v", err)
		}
	}()
	h.t.Cleanup(h.stop)
}

func (h *harness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		h.t.Fatal("Supervisor did not stop")
	}
}

func (h *harness) info(name string) Info {
	h.t.Helper()
	info, err := h.sup.Status(context.Background(), name)
	if err != nil {
		h.t.Fatalf("Status(%s) failed: %v", name, err)
	}
	return info
}

func (h *harness) waitFor(name string, cond func(Info) bool, what string) Info {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		info := h.info(name)
		if cond(info) {
			return info
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("Timed out waiting for %s to be %s, last state %s gen %d", name, what, info.State, info.Generation)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitRunning(name string, generation int) Info {
	h.t.Helper()
	return h.waitFor(name, func(i Info) bool {
		return i.State == StateRunning && i.Generation == generation
	}, "running")
}

func crashIn(root string) Failure {
	return Failure{
		Kind:   KindException,
		Err:    errors.New("TypeError: cannot read property 'slots' of undefined"),
		Frames: []string{"TypeError: cannot read property", "at onIntent (" + root + "/index.js:12:7)"},
	}
}

func TestNewRequiresCatalogAndRunner(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("Expected error for nil options")
	}
	cat, _ := catalog.New()
	if _, err := New(&Options{Catalog: cat}); err == nil {
		t.Error("Expected error without runner")
	}
}

func TestSupervisorLaunchesAllActions(t *testing.T) {
	h := newHarness(t, nil,
		catalog.Action{Name: "weather", Main: "index.js", Root: "/actions/weather"},
		catalog.Action{Name: "lights", Main: "lib/main.js", Root: "/actions/lights"},
	)
	h.start()

	h.waitRunning("weather", 1)
	info := h.waitRunning("lights", 1)
	if info.Target != "/actions/lights/lib/main.js" {
		t.Errorf("Expected target resolved against root, got %s", info.Target)
	}
	if info.InstanceID == "" {
		t.Error("Expected instance ID on launch")
	}

	req := h.runner.request(0)
	if req.Options.Cwd != "/actions/weather" {
		t.Errorf("Expected cwd to be the action root, got %s", req.Options.Cwd)
	}
	if req.Payload["locale"] != "en_US" {
		t.Errorf("Expected payload to be passed, got %v", req.Payload)
	}

	infos, err := h.sup.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "weather" || infos[1].Name != "lights" {
		t.Errorf("Expected snapshot in registration order, got %+v", infos)
	}
}

func TestSupervisorDisablesAfterThreeCrashes(t *testing.T) {
	h := newHarness(t, nil)
	crashed := make(chan events.ActionCrashedEvent, 10)
	unsub := events.Subscribe(h.bus, func(e events.ActionCrashedEvent) { crashed <- e })
	defer unsub()
	h.start()

	first := h.waitRunning("weather", 1)

	h.sup.Report(crashIn("/actions/weather"))
	h.waitRunning("weather", 2)
	h.clock.Advance(time.Second)

	h.sup.Report(crashIn("/actions/weather"))
	h.waitRunning("weather", 3)
	h.clock.Advance(time.Second)

	h.sup.Report(crashIn("/actions/weather"))
	info := h.waitFor("weather", func(i Info) bool { return i.State == StateDisabled }, "disabled")

	if got := h.runner.launchCount("weather"); got != 3 {
		t.Errorf("Expected 3 launches, got %d", got)
	}
	if info.TotalCrashes != 3 || info.RestartCount != 2 {
		t.Errorf("Expected 3 crashes and 2 restarts, got %d and %d", info.TotalCrashes, info.RestartCount)
	}
	if h.runner.teardownCount(first.InstanceID) != 1 {
		t.Errorf("Expected crashed instance torn down once, got %d", h.runner.teardownCount(first.InstanceID))
	}

	var decisions []string
	for range 3 {
		select {
		case e := <-crashed:
			decisions = append(decisions, e.Decision)
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for crash events")
		}
	}
	if strings.Join(decisions, ",") != "restart,restart,disable" {
		t.Errorf("Unexpected decisions %v", decisions)
	}

	// Disabled is terminal: later failures are ignored.
	h.sup.Report(crashIn("/actions/weather"))
	h.clock.Advance(time.Minute)
	info = h.info("weather")
	if info.State != StateDisabled || info.TotalCrashes != 3 {
		t.Errorf("Expected disabled action to ignore failures, got %s with %d crashes", info.State, info.TotalCrashes)
	}
	if got := h.runner.launchCount("weather"); got != 3 {
		t.Errorf("Expected no relaunch of disabled action, got %d launches", got)
	}
}

func TestSupervisorWindowExpiryAllowsMoreCrashes(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.waitRunning("weather", 1)

	h.sup.Report(crashIn("/actions/weather"))
	h.waitRunning("weather", 2)
	h.clock.Advance(5 * time.Second)

	h.sup.Report(crashIn("/actions/weather"))
	info := h.waitRunning("weather", 3)
	if info.WindowCrashes != 2 {
		t.Fatalf("Expected 2 crashes in window, got %d", info.WindowCrashes)
	}

	h.clock.Advance(6 * time.Second)
	h.waitFor("weather", func(i Info) bool { return i.WindowCrashes == 0 }, "out of window")

	h.sup.Report(crashIn("/actions/weather"))
	info = h.waitRunning("weather", 4)
	if info.WindowCrashes != 1 {
		t.Errorf("Expected fresh window, got %d crashes", info.WindowCrashes)
	}
	if info.TotalCrashes != 3 {
		t.Errorf("Expected 3 total crashes, got %d", info.TotalCrashes)
	}
}

func TestSupervisorUnattributedFailure(t *testing.T) {
	h := newHarness(t, nil,
		catalog.Action{Name: "weather", Main: "index.js", Root: "/actions/weather"},
		catalog.Action{Name: "lights", Main: "index.js", Root: "/actions/lights"},
	)
	unattributed := make(chan events.FailureUnattributedEvent, 1)
	unsub := events.Subscribe(h.bus, func(e events.FailureUnattributedEvent) { unattributed <- e })
	defer unsub()
	h.start()
	h.waitRunning("weather", 1)
	h.waitRunning("lights", 1)

	h.sup.Report(Failure{
		Err:    errors.New("ECONNRESET"),
		Frames: []string{"at TLSSocket.onread (net.js:622:25)"},
	})

	select {
	case e := <-unattributed:
		if e.Error != "ECONNRESET" {
			t.Errorf("Expected ECONNRESET, got %s", e.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for unattributed event")
	}

	for _, name := range []string{"weather", "lights"} {
		info := h.info(name)
		if info.State != StateRunning || info.Generation != 1 || info.TotalCrashes != 0 {
			t.Errorf("Expected %s untouched, got %s gen %d", name, info.State, info.Generation)
		}
	}
}

func TestSupervisorRejectionIsOnlyLogged(t *testing.T) {
	h := newHarness(t, nil)
	rejections := make(chan events.RejectionEvent, 1)
	unsub := events.Subscribe(h.bus, func(e events.RejectionEvent) { rejections <- e })
	defer unsub()
	h.start()
	h.waitRunning("weather", 1)

	req := h.runner.request(0)
	req.Report(Failure{Kind: KindRejection, Err: errors.New("timeout"), Frames: []string{"at /actions/weather/index.js"}})

	select {
	case e := <-rejections:
		if e.Origin != "weather" {
			t.Errorf("Expected origin weather, got %q", e.Origin)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for rejection event")
	}

	info := h.info("weather")
	if info.TotalCrashes != 0 || info.Generation != 1 {
		t.Errorf("Expected rejection to leave action alone, got %d crashes gen %d", info.TotalCrashes, info.Generation)
	}
}

func TestSupervisorLaunchErrorDoesNotCount(t *testing.T) {
	h := newHarness(t, nil,
		catalog.Action{Name: "broken", Main: "index.js", Root: "/actions/broken"},
		catalog.Action{Name: "weather", Main: "index.js", Root: "/actions/weather"},
	)
	h.runner.failures["broken"] = errors.New("Cannot find module 'snips-toolkit'")
	h.start()

	h.waitRunning("weather", 1)
	info := h.waitFor("broken", func(i Info) bool { return i.LastError != nil }, "failed")

	if info.State != StatePending {
		t.Errorf("Expected broken to stay pending, got %s", info.State)
	}
	var launchErr *LaunchError
	if !errors.As(info.LastError, &launchErr) || launchErr.Action != "broken" {
		t.Errorf("Expected LaunchError for broken, got %v", info.LastError)
	}
	if info.WindowCrashes != 0 || info.TotalCrashes != 0 {
		t.Errorf("Expected launch error to skip backoff, got %d/%d", info.WindowCrashes, info.TotalCrashes)
	}
	if got := h.runner.launchCount("broken"); got != 1 {
		t.Errorf("Expected a single launch attempt, got %d", got)
	}
}

func TestSupervisorRunnerPanicIsLaunchError(t *testing.T) {
	runner := RunnerFunc(func(context.Context, LaunchRequest) (Teardown, error) {
		panic("runner exploded")
	})
	h := newHarness(t, func(o *Options) { o.Runner = runner })
	h.start()

	info := h.waitFor("weather", func(i Info) bool { return i.LastError != nil }, "failed")
	var launchErr *LaunchError
	if !errors.As(info.LastError, &launchErr) {
		t.Errorf("Expected LaunchError, got %v", info.LastError)
	}
}

func TestSupervisorTearsDownStaleLaunch(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.runner.gates["weather"] = gate
	h.start()

	// The first launch is still in flight when its failure arrives.
	h.waitFor("weather", func(i Info) bool { return i.Generation == 1 }, "launching")
	for h.runner.launchCount("weather") != 1 {
		time.Sleep(time.Millisecond)
	}
	h.sup.Report(crashIn("/actions/weather"))
	h.waitRunning("weather", 2)

	first := h.runner.request(0)
	close(gate)

	deadline := time.Now().Add(2 * time.Second)
	for h.runner.teardownCount(first.InstanceID) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Expected stale launch to be torn down")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if info := h.info("weather"); info.State != StateRunning || info.Generation != 2 {
		t.Errorf("Expected generation 2 to keep running, got %s gen %d", info.State, info.Generation)
	}
}

func TestSupervisorCleanExit(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.waitRunning("weather", 1)

	h.runner.request(0).Exited()
	h.waitFor("weather", func(i Info) bool { return i.State == StateStopped }, "stopped")

	h.sup.Report(crashIn("/actions/weather"))
	time.Sleep(20 * time.Millisecond)
	if got := h.runner.launchCount("weather"); got != 1 {
		t.Errorf("Expected stopped action not to be relaunched, got %d launches", got)
	}
}

func TestSupervisorShutdownStopsEverything(t *testing.T) {
	var mu sync.Mutex
	final := make(map[string]State)
	h := newHarness(t, func(o *Options) {
		o.OnStateChange = func(name string, _, to State, _ error) {
			mu.Lock()
			final[name] = to
			mu.Unlock()
		}
	},
		catalog.Action{Name: "weather", Main: "index.js", Root: "/actions/weather"},
		catalog.Action{Name: "lights", Main: "index.js", Root: "/actions/lights"},
	)
	h.start()
	w := h.waitRunning("weather", 1)
	l := h.waitRunning("lights", 1)

	h.stop()

	if h.runner.teardownCount(w.InstanceID) != 1 || h.runner.teardownCount(l.InstanceID) != 1 {
		t.Error("Expected every running action torn down on shutdown")
	}
	mu.Lock()
	defer mu.Unlock()
	for name, state := range final {
		if state != StateStopped {
			t.Errorf("Expected %s stopped, got %s", name, state)
		}
	}

	if _, err := h.sup.Snapshot(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped after shutdown, got %v", err)
	}
	if err := h.sup.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestSupervisorRecoverReportsPanic(t *testing.T) {
	h := newHarness(t, nil)
	unattributed := make(chan events.FailureUnattributedEvent, 1)
	unsub := events.Subscribe(h.bus, func(e events.FailureUnattributedEvent) { unattributed <- e })
	defer unsub()
	h.start()
	h.waitRunning("weather", 1)

	go func() {
		defer h.sup.Recover()
		panic("index out of range")
	}()

	select {
	case e := <-unattributed:
		if !strings.Contains(e.Error, "index out of range") {
			t.Errorf("Expected panic value in error, got %s", e.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for panic report")
	}
}

func TestSupervisorSetPayloadAppliesToRelaunch(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	h.waitRunning("weather", 1)

	h.sup.SetPayload(map[string]any{"locale": "fr_FR"})
	h.sup.Report(crashIn("/actions/weather"))
	h.waitRunning("weather", 2)

	if got := h.runner.request(0).Payload["locale"]; got != "en_US" {
		t.Errorf("Expected first launch to keep en_US, got %v", got)
	}
	if got := h.runner.request(1).Payload["locale"]; got != "fr_FR" {
		t.Errorf("Expected relaunch to use fr_FR, got %v", got)
	}
}

func TestSupervisorStatusUnknownAction(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	if _, err := h.sup.Status(context.Background(), "nope"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected ErrUnknownAction, got %v", err)
	}
}
