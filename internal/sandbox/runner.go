// Package sandbox launches actions as isolated child processes.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/smazurov/actiond/internal/logging"
	"github.com/smazurov/actiond/internal/process"
	"github.com/smazurov/actiond/internal/supervisor"
)

// Environment handed to every action process.
const (
	EnvConfig   = "ACTIOND_CONFIG"   // launch payload as JSON
	EnvAction   = "ACTIOND_ACTION"   // action name
	EnvInstance = "ACTIOND_INSTANCE" // launch instance ID
)

// DefaultInterpreter runs action entry points.
const DefaultInterpreter = "node"

// ExitError reports an action process that exited with a non-zero code.
type ExitError struct {
	Action string
	Code   int
	// Detail is the last line the process wrote to stderr, if any.
	Detail string
}

func (e *ExitError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("action %s exited with code %d", e.Action, e.Code)
	}
	return fmt.Sprintf("action %s exited with code %d: %s", e.Action, e.Code, e.Detail)
}

// ProcessOptions configures a ProcessRunner.
type ProcessOptions struct {
	// Interpreter is the command line the entry point is appended to.
	// Defaults to DefaultInterpreter.
	Interpreter string
	// GracefulTimeout bounds SIGINT handling on teardown before SIGKILL.
	GracefulTimeout time.Duration
	// TailLines is how many stderr lines become trace frames.
	TailLines int
	// OutputGrace bounds how long output left open by background children
	// may delay reporting an exit. Defaults to process.DefaultOutputGrace.
	OutputGrace time.Duration
	// Logger for runner operations. Defaults to the "sandbox" module logger.
	Logger logging.Logger
}

// ProcessRunner runs each action as `<interpreter> <target>` in the action root.
type ProcessRunner struct {
	interpreter []string
	opts        ProcessOptions
	logger      logging.Logger
}

// NewProcessRunner validates the interpreter command line.
func NewProcessRunner(opts ProcessOptions) (*ProcessRunner, error) {
	if opts.Interpreter == "" {
		opts.Interpreter = DefaultInterpreter
	}
	args, err := process.ParseCommand(opts.Interpreter)
	if err != nil {
		return nil, fmt.Errorf("invalid interpreter %q: %w", opts.Interpreter, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("invalid interpreter %q: empty command", opts.Interpreter)
	}
	if opts.TailLines <= 0 {
		opts.TailLines = process.DefaultTailLines
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("sandbox")
	}

	return &ProcessRunner{
		interpreter: args,
		opts:        opts,
		logger:      logger,
	}, nil
}

// Launch implements supervisor.Runner.
func (r *ProcessRunner) Launch(ctx context.Context, req supervisor.LaunchRequest) (supervisor.Teardown, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(req.Options.Target); err != nil {
		return nil, fmt.Errorf("entry point: %w", err)
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	args := append(slices.Clone(r.interpreter), req.Options.Target)
	p := process.NewProcessWithOutput(req.Action, args, r.logger, &rejectionWatcher{req: req})
	p.SetDir(req.Options.Cwd)
	p.SetEnv([]string{
		EnvConfig + "=" + string(payload),
		EnvAction + "=" + req.Action,
		EnvInstance + "=" + req.InstanceID,
	})
	p.SetGracefulTimeout(r.opts.GracefulTimeout)
	p.SetTailLines(r.opts.TailLines)
	p.SetOutputGrace(r.opts.OutputGrace)
	p.SetLogParser(r.logger, parseLogLine)

	if err := p.Start(); err != nil {
		return nil, err
	}

	go r.watch(p, req)

	return func() {
		p.Stop()
	}, nil
}

// watch turns the way the process ended into a supervisor signal.
func (r *ProcessRunner) watch(p *process.Process, req supervisor.LaunchRequest) {
	exit := p.Wait()
	switch {
	case exit.Stopped:
	case exit.Success():
		req.Exited()
	default:
		r.logger.Warn("Action process failed", "action", req.Action, "exit_code", exit.Code)
		req.Report(exitFailure(req, exit))
	}
}

// exitFailure builds a failure whose frames are the stderr tail followed by
// the entry point, so trace attribution always finds the action root.
func exitFailure(req supervisor.LaunchRequest, exit process.Exit) supervisor.Failure {
	frames := make([]string, 0, len(exit.Stderr)+1)
	var detail string
	for _, line := range exit.Stderr {
		if line = strings.TrimSpace(line); line != "" {
			frames = append(frames, line)
			if detail == "" {
				detail = line
			}
		}
	}
	frames = append(frames, "at "+req.Options.Target)

	var err error = &ExitError{Action: req.Action, Code: exit.Code, Detail: detail}
	if exit.Err != nil {
		err = errors.Join(err, exit.Err)
	}

	return supervisor.Failure{
		Kind:   supervisor.KindException,
		Err:    err,
		Frames: frames,
		Origin: req.Action,
	}
}

// rejectionWatcher reports stderr lines announcing unhandled promise rejections.
type rejectionWatcher struct {
	req supervisor.LaunchRequest
}

func (w *rejectionWatcher) HandleLine(source, line string) {
	if source != "stderr" || !isRejection(line) {
		return
	}
	w.req.Report(supervisor.Failure{
		Kind:   supervisor.KindRejection,
		Err:    errors.New(strings.TrimSpace(line)),
		Origin: w.req.Action,
	})
}

func isRejection(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "unhandledpromiserejection") ||
		strings.Contains(lower, "unhandled promise rejection")
}

// parseLogLine maps common level prefixes of action output to log levels.
func parseLogLine(line string) (level, msg string) {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)
	for _, candidate := range []string{"error", "warn", "debug", "info"} {
		for _, prefix := range []string{"[" + candidate, candidate + ":", candidate + " "} {
			if strings.HasPrefix(lower, prefix) {
				if candidate == "warn" {
					return "warning", trimmed
				}
				return candidate, trimmed
			}
		}
	}
	return "info", trimmed
}
