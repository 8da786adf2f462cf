package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/mediavoice/internal/lifecycle"
	"github.com/dgnsrekt/mediavoice/internal/tts"
)

// RunState is the lifecycle state of a child process.
type RunState int

const (
	// NotStarted means no process handle exists yet.
	NotStarted RunState = iota

	// Running means the process has been started.
	Running

	// Complete means the process exited on its own.
	Complete

	// Terminated means the process exited after a terminate signal.
	Terminated

	// Killed means the process was forcibly killed.
	Killed
)

// String returns the string representation of the run state
func (s RunState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Terminated:
		return "terminated"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is a final state.
func (s RunState) IsTerminal() bool {
	return s == Complete || s == Terminated || s == Killed
}

// Sentinel return codes set by the runner itself.
const (
	// CodeKilledOnAbort is recorded when the child is killed during shutdown.
	CodeKilledOnAbort = 99

	// CodeExpiredBeforeStart is recorded when the owner expired before launch.
	CodeExpiredBeforeStart = 11
)

var (
	// ErrAlreadyRun is returned when Run is called twice on one Runner.
	ErrAlreadyRun = errors.New("process already run")
)

// Options configures a Runner.
type Options struct {
	// Name is the executable to run.
	Name string

	// Args are the command arguments.
	Args []string

	// Env is appended to the current environment.
	Env []string

	// Dir is the working directory.
	Dir string

	// Stdin streams input to the child. Nil connects the null device.
	Stdin io.Reader

	// Stdout receives raw stdout bytes (e.g., audio). It takes precedence
	// over line capture for stdout.
	Stdout io.Writer

	// Capture drains stdout and stderr line by line into bounded buffers.
	Capture bool

	// PollInterval is the status poll period (default 100ms).
	PollInterval time.Duration

	// KillCountdown is the number of polls between terminate and kill
	// (default 2).
	KillCountdown int

	// MaxCaptureLines bounds each capture buffer (default 200).
	MaxCaptureLines int

	// ReaderJoinTimeout bounds the wait for capture readers (default 500ms).
	ReaderJoinTimeout time.Duration
}

// Runner runs one command. It is not reusable.
type Runner struct {
	opts   Options
	owner  tts.Expirable
	life   *lifecycle.Manager
	logger *log.Logger

	mu         sync.Mutex
	state      RunState
	returnCode int
	started    bool
	cmd        *exec.Cmd
	stdout     *lineBuffer
	stderr     *lineBuffer

	cancelOnce sync.Once
	cancelCh   chan struct{}
	cancelNow  bool
}

// New creates a runner. owner may be nil; life may be nil.
func New(opts Options, owner tts.Expirable, life *lifecycle.Manager, logger *log.Logger) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.KillCountdown <= 0 {
		opts.KillCountdown = 2
	}
	if opts.MaxCaptureLines <= 0 {
		opts.MaxCaptureLines = 200
	}
	if opts.ReaderJoinTimeout <= 0 {
		opts.ReaderJoinTimeout = 500 * time.Millisecond
	}
	if owner == nil {
		owner = tts.Never
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		opts:     opts,
		owner:    owner,
		life:     life,
		logger:   logger.WithPrefix("process"),
		cancelCh: make(chan struct{}),
	}
}

// State returns the current run state.
func (r *Runner) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ReturnCode returns the exit code, or a runner sentinel code.
func (r *Runner) ReturnCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.returnCode
}

// IsRunning reports whether the child has started and not yet finished.
func (r *Runner) IsRunning() bool {
	return r.State() == Running
}

// IsFinished reports whether the child reached a terminal state.
func (r *Runner) IsFinished() bool {
	return r.State().IsTerminal()
}

// Stdout returns captured stdout lines.
func (r *Runner) Stdout() []string {
	r.mu.Lock()
	buf := r.stdout
	r.mu.Unlock()
	if buf == nil {
		return nil
	}
	return buf.Lines()
}

// Stderr returns captured stderr lines.
func (r *Runner) Stderr() []string {
	r.mu.Lock()
	buf := r.stderr
	r.mu.Unlock()
	if buf == nil {
		return nil
	}
	return buf.Lines()
}

// Terminate asks a running child to stop. With now set the kill escalation
// starts on the next poll; otherwise the usual countdown applies.
func (r *Runner) Terminate(now bool) {
	r.cancelOnce.Do(func() {
		r.mu.Lock()
		r.cancelNow = now
		r.mu.Unlock()
		close(r.cancelCh)
	})
}

// Run starts the command and blocks until it reaches a terminal state.
// It returns tts.ErrExpired when the owner expired before launch and
// lifecycle.ErrAbort when the process-wide abort fired while running.
func (r *Runner) Run(ctx context.Context) (RunState, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return r.State(), ErrAlreadyRun
	}
	r.started = true
	r.mu.Unlock()

	if err := r.life.Check(); err != nil {
		r.setCode(CodeKilledOnAbort)
		return NotStarted, err
	}
	if r.owner.IsExpired() {
		r.setCode(CodeExpiredBeforeStart)
		return NotStarted, tts.ErrExpired
	}

	cmd := exec.Command(r.opts.Name, r.opts.Args...) //nolint:gosec
	cmd.Dir = r.opts.Dir
	if len(r.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), r.opts.Env...)
	}
	cmd.Stdin = r.opts.Stdin
	cmd.WaitDelay = r.opts.ReaderJoinTimeout
	setProcessGroup(cmd)

	capture, err := r.setupOutput(cmd)
	if err != nil {
		return NotStarted, err
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		capture.abandon()
		return NotStarted, fmt.Errorf("failed to start %s: %w", r.opts.Name, err)
	}
	capture.start()

	r.mu.Lock()
	r.cmd = cmd
	r.state = Running
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	state, runErr := r.poll(ctx, cmd, done)
	capture.join(r.opts.ReaderJoinTimeout)

	r.mu.Lock()
	r.state = state
	code := r.returnCode
	r.mu.Unlock()

	if state == Complete && code == 0 {
		r.logger.Debug("Subprocess executed",
			"command", r.opts.Name,
			"args", r.opts.Args,
			"duration", time.Since(start))
	} else {
		r.logger.Debug("Subprocess failed",
			"command", r.opts.Name,
			"args", r.opts.Args,
			"state", state,
			"code", code,
			"duration", time.Since(start),
			"stdout", strings.Join(r.Stdout(), "\n"),
			"stderr", strings.Join(r.Stderr(), "\n"))
	}

	return state, runErr
}

// poll watches the child until it exits. The returned state is terminal.
func (r *Runner) poll(ctx context.Context, cmd *exec.Cmd, done <-chan error) (RunState, error) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	state := Running
	countdown := -1
	cancelCh := r.cancelCh

	escalate := func(now bool) {
		if state != Running {
			return
		}
		if err := terminate(cmd); err != nil {
			r.logger.Debug("Failed to send terminate signal", "error", err)
		}
		state = Terminated
		countdown = r.opts.KillCountdown
		if now {
			countdown = 1
		}
	}

	for {
		select {
		case err := <-done:
			r.setCode(exitCode(err))
			if state == Running {
				state = Complete
			}
			return state, nil

		case <-r.life.Done():
			if err := kill(cmd); err != nil {
				r.logger.Debug("Failed to kill process", "error", err)
			}
			<-done
			r.setCode(CodeKilledOnAbort)
			return Killed, lifecycle.ErrAbort

		case <-cancelCh:
			cancelCh = nil
			r.mu.Lock()
			now := r.cancelNow
			r.mu.Unlock()
			escalate(now)

		case <-ticker.C:
			if state == Running {
				if r.owner.IsExpired() || ctx.Err() != nil {
					escalate(false)
				}
				continue
			}
			if state == Terminated {
				countdown--
				if countdown <= 0 {
					if err := kill(cmd); err != nil {
						r.logger.Debug("Failed to kill process", "error", err)
					}
					state = Killed
				}
			}
		}
	}
}

func (r *Runner) setCode(code int) {
	r.mu.Lock()
	r.returnCode = code
	r.mu.Unlock()
}

// exitCode extracts the exit status from a Wait error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return -1
}

// Output is a convenience that runs a command and returns its stdout bytes.
// A non-zero exit or a non-complete state is reported as an error carrying
// captured stderr.
func Output(ctx context.Context, opts Options, owner tts.Expirable, life *lifecycle.Manager, logger *log.Logger) ([]byte, error) {
	var stdout bytes.Buffer
	opts.Stdout = &stdout
	opts.Capture = true

	r := New(opts, owner, life, logger)
	state, err := r.Run(ctx)
	if err != nil {
		return nil, err
	}
	if state != Complete {
		return nil, fmt.Errorf("%s did not complete: %s", opts.Name, state)
	}
	if code := r.ReturnCode(); code != 0 {
		return nil, fmt.Errorf("%s exited with code %d: %s", opts.Name, code, strings.Join(r.Stderr(), "\n"))
	}
	return stdout.Bytes(), nil
}

// CheckBinary checks if a binary exists in the system PATH.
func CheckBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("binary '%s' not found in PATH: %w", name, err)
	}
	return nil
}
