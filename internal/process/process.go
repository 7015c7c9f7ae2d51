package process

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/actiond/internal/logging"
)

const (
	// DefaultTailLines is how many trailing stderr lines an Exit keeps.
	DefaultTailLines = 50
	// DefaultOutputGrace is how long output may stay open after the process
	// exited, e.g. because a background child inherited it.
	DefaultOutputGrace = 500 * time.Millisecond
	// MaxLineLength caps a single output line; longer lines are truncated.
	MaxLineLength = 64 * 1024

	truncatedMarker = " [truncated]"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("process already started")

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// Exit describes how a subprocess ended.
type Exit struct {
	Code int
	// Err is the error returned by Wait, nil for a clean exit.
	Err error
	// Stderr holds the last lines the process wrote to stderr.
	Stderr []string
	// Stopped is true when the exit followed a call to Stop.
	Stopped bool
}

// Success reports whether the process exited with code 0.
func (e Exit) Success() bool {
	return e.Code == 0
}

// Process manages the lifecycle of one subprocess.
type Process struct {
	id              string
	args            []string
	dir             string
	env             []string
	cmd             *exec.Cmd
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser      // parses process output for log level (nil = no parsing)
	outputHandler   OutputHandler
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after Kill() before giving up
	outputGrace     time.Duration // cmd.WaitDelay
	tail            *lineTail

	mu       sync.Mutex
	started  bool
	stopping bool
	done     chan struct{}
	exit     Exit
}

// NewProcess creates a process for args; args[0] is the executable.
func NewProcess(id string, args []string, logger logging.Logger) *Process {
	return NewProcessWithOutput(id, args, logger, nil)
}

// NewProcessWithOutput creates a new process with an output handler.
// The handler receives each line of stdout/stderr from the subprocess.
func NewProcessWithOutput(id string, args []string, logger logging.Logger, handler OutputHandler) *Process {
	return &Process{
		id:              id,
		args:            args,
		logger:          logger,
		outputHandler:   handler,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		outputGrace:     DefaultOutputGrace,
		tail:            newLineTail(DefaultTailLines),
		done:            make(chan struct{}),
	}
}

// ID returns the process identifier.
func (p *Process) ID() string {
	return p.id
}

// Args returns the command line.
func (p *Process) Args() []string {
	return p.args
}

// SetDir sets the working directory of the subprocess.
func (p *Process) SetDir(dir string) {
	p.dir = dir
}

// SetEnv appends variables (KEY=value) to the inherited environment.
func (p *Process) SetEnv(env []string) {
	p.env = env
}

// SetGracefulTimeout sets how long Stop waits after SIGINT before killing.
func (p *Process) SetGracefulTimeout(timeout time.Duration) {
	if timeout > 0 {
		p.gracefulTimeout = timeout
	}
}

// SetOutputGrace sets how long output may stay open after the process exits
// before it is closed and the exit reported anyway.
func (p *Process) SetOutputGrace(grace time.Duration) {
	if grace > 0 {
		p.outputGrace = grace
	}
}

// SetTailLines sets how many trailing stderr lines are kept.
func (p *Process) SetTailLines(n int) {
	p.tail = newLineTail(n)
}

// SetLogParser sets a custom logger and log parser for process output.
// The logger is used for process output (e.g., module="sandbox").
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// Pid returns the process id, or 0 before Start.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Start launches the subprocess and returns once it is running.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	if len(p.args) == 0 || p.args[0] == "" {
		p.logger.Error("Empty command")
		return fmt.Errorf("empty command")
	}

	stdout := &lineWriter{source: "stdout", emit: p.handleLine}
	stderr := &lineWriter{source: "stderr", emit: p.handleLine}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Dir = p.dir
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Descendants holding stdout or stderr must not delay the exit.
	cmd.WaitDelay = p.outputGrace

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", strings.Join(p.args, " "))
		return err
	}

	p.cmd = cmd
	p.started = true
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", strings.Join(p.args, " "))

	go func() {
		err := cmd.Wait()
		// Wait returns only after the copy goroutines are done writing.
		stdout.flush()
		stderr.flush()
		p.finish(err)
	}()

	return nil
}

func (p *Process) finish(waitErr error) {
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		p.logger.Warn("Process output still open after exit, closed it", "id", p.id, "grace", p.outputGrace)
		waitErr = nil
	}

	exitCode := exitCodeFromError(waitErr)
	if waitErr != nil && exitCode == 1 {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			p.logger.Error("Process exited with error", "error", waitErr)
		}
	}

	p.mu.Lock()
	p.exit = Exit{
		Code:    exitCode,
		Err:     waitErr,
		Stderr:  p.tail.Lines(),
		Stopped: p.stopping,
	}
	p.mu.Unlock()

	p.logger.Info("Process exited", "id", p.id, "exit_code", exitCode)
	close(p.done)
}

// Done is closed when the subprocess has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the subprocess exits and returns how it ended.
func (p *Process) Wait() Exit {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

// Stop sends SIGINT to the process group, force-kills it after the graceful
// timeout and blocks until it is gone. Safe to call more than once and after
// the process already exited.
func (p *Process) Stop() Exit {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return Exit{}
	}
	p.stopping = true
	p.mu.Unlock()

	select {
	case <-p.done:
		return p.Wait()
	default:
	}

	p.signalGroup(syscall.SIGINT)
	select {
	case <-p.done:
		return p.Wait()
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", p.gracefulTimeout)
	p.signalGroup(syscall.SIGKILL)

	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal")
		return Exit{Code: 137, Stopped: true, Stderr: p.tail.Lines()}
	}

	exit := p.Wait()
	exit.Code = 137
	return exit
}

func (p *Process) signalGroup(sig syscall.Signal) {
	pid := p.Pid()
	if pid == 0 {
		return
	}
	p.logger.Info("Signalling process group", "pid", pid, "signal", sig.String())
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Warn("Failed to signal process group", "signal", sig.String(), "error", err)
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError (128+signal when
// signaled), or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// handleLine records one output line and logs it through the process logger
// at the level the LogParser assigns.
func (p *Process) handleLine(source, line string) {
	if source == "stderr" {
		p.tail.Add(line)
	}
	if p.outputHandler != nil {
		p.outputHandler.HandleLine(source, line)
	}

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}
	level, msg := "info", line
	if p.logParser != nil {
		level, msg = p.logParser(line)
	}

	switch level {
	case "fatal", "error":
		logger.Error(msg, "action", p.id, "source", source)
	case "warning", "warn":
		logger.Warn(msg, "action", p.id, "source", source)
	case "debug", "trace":
		logger.Debug(msg, "action", p.id, "source", source)
	default:
		logger.Info(msg, "action", p.id, "source", source)
	}
}

// lineWriter splits a stream into lines for emit. It never fails or blocks
// on long lines: anything past MaxLineLength is dropped up to the next
// newline. Only one goroutine writes to it at a time.
type lineWriter struct {
	source    string
	emit      func(source, line string)
	buf       []byte
	truncated bool
}

func (w *lineWriter) Write(b []byte) (int, error) {
	n := len(b)
	for {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			w.append(b)
			return n, nil
		}
		w.append(b[:i])
		w.line()
		b = b[i+1:]
	}
}

func (w *lineWriter) append(b []byte) {
	room := MaxLineLength - len(w.buf)
	if len(b) > room {
		b = b[:room]
		w.truncated = true
	}
	w.buf = append(w.buf, b...)
}

func (w *lineWriter) line() {
	line := string(bytes.TrimSuffix(w.buf, []byte("\r")))
	if w.truncated {
		line += truncatedMarker
	}
	w.buf = w.buf[:0]
	w.truncated = false
	w.emit(w.source, line)
}

// flush emits a final line that had no trailing newline.
func (w *lineWriter) flush() {
	if len(w.buf) > 0 || w.truncated {
		w.line()
	}
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	mu    sync.Mutex
	size  int
	lines []string
}

func newLineTail(size int) *lineTail {
	if size < 1 {
		size = 1
	}
	return &lineTail{size: size}
}

func (t *lineTail) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.size {
		t.lines = t.lines[len(t.lines)-t.size:]
	}
}

func (t *lineTail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// ParseCommand parses a command string into arguments
// Handles quoted strings and basic escaping.
func ParseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	command = strings.TrimSpace(command)
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			// Handle escape sequences
			i++ // Skip the backslash
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	// Add final argument
	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
