package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ProcessBuilder creates the executable command for a managed process.
// This keeps the supervisor decoupled from how descriptors are turned
// into command lines.
type ProcessBuilder interface {
	// BuildCommand returns a ready-to-start command. It must NOT be
	// started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns the process identity.
	Name() string
}

// OutputSink consumes one output stream of the supervised process.
type OutputSink interface {
	// HandleReader reads the stream until EOF.
	HandleReader(r io.Reader)
}

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the process state changes.
	OnStateChange func(proc string, oldState, newState State)

	// OnStart is called when the process starts.
	OnStart func(proc string, pid int)

	// OnExit is called when the process exits.
	OnExit func(proc string, exitCode int, uptime time.Duration)

	// OnRestart is called before a restart attempt.
	OnRestart func(proc string, attempt int, delay time.Duration)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Process   string
	Builder   ProcessBuilder
	Backoff   *Backoff
	Logger    *slog.Logger
	Callbacks Callbacks

	// MaxRestarts caps restart attempts (0 = unlimited).
	MaxRestarts int

	// GracefulStopTimeout bounds the SIGTERM-to-SIGKILL window in Stop.
	// Zero means DefaultGracefulStopTimeout.
	GracefulStopTimeout time.Duration

	// Stdout/Stderr receive the process output streams. Nil streams are
	// left connected to /dev/null.
	Stdout OutputSink
	Stderr OutputSink
}

// DefaultGracefulStopTimeout is used when a supervisor is configured
// without an explicit graceful-stop timeout.
const DefaultGracefulStopTimeout = 30 * time.Second

// drainTimeout bounds how long runOnce waits for output sinks to finish
// reading after the process exited.
const drainTimeout = 5 * time.Second

// Supervisor manages the lifecycle of a single managed process: it
// starts, monitors and restarts the process with backoff, and stops it
// gracefully on shutdown.
type Supervisor struct {
	proc      string
	builder   ProcessBuilder
	backoff   *Backoff
	logger    *slog.Logger
	callbacks Callbacks

	state   State
	stateMu sync.RWMutex

	// Current process; waitDone closes when the current Wait returns.
	// startTime is guarded by cmdMu as well.
	cmd       *exec.Cmd
	waitDone  chan struct{}
	startTime time.Time
	cmdMu     sync.Mutex

	maxRestarts int
	restarts    atomic.Int64

	gracefulStopTimeout time.Duration
	stopping            atomic.Bool
	stopCh              chan struct{}
	stopOnce            sync.Once

	stdout OutputSink
	stderr OutputSink
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	timeout := cfg.GracefulStopTimeout
	if timeout <= 0 {
		timeout = DefaultGracefulStopTimeout
	}

	return &Supervisor{
		proc:                cfg.Process,
		builder:             cfg.Builder,
		backoff:             cfg.Backoff,
		logger:              cfg.Logger,
		callbacks:           cfg.Callbacks,
		state:               StateCreated,
		stopCh:              make(chan struct{}),
		maxRestarts:         cfg.MaxRestarts,
		gracefulStopTimeout: timeout,
		stdout:              cfg.Stdout,
		stderr:              cfg.Stderr,
	}
}

// Run starts the supervision loop. It blocks until the context is
// cancelled, Stop is called, or MaxRestarts is reached.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Debug("supervisor_starting", "process", s.proc)

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			s.logger.Debug("supervisor_stopped", "process", s.proc, "reason", "context_cancelled")
			return ctx.Err()
		default:
		}

		if s.stopping.Load() {
			s.setState(StateStopped)
			s.logger.Info("supervisor_stopped", "process", s.proc, "reason", "stop_requested")
			return nil
		}

		if s.maxRestarts > 0 && s.Restarts() >= s.maxRestarts {
			s.setState(StateStopped)
			s.logger.Warn("max_restarts_reached",
				"process", s.proc,
				"restarts", s.Restarts(),
				"max", s.maxRestarts,
			)
			return errors.New("max restarts reached")
		}

		exitCode, uptime, err := s.runOnce(ctx)
		if err != nil && ctx.Err() != nil {
			s.setState(StateStopped)
			return ctx.Err()
		}

		// A requested stop must not trigger a restart.
		if s.stopping.Load() {
			s.setState(StateStopped)
			s.logger.Info("supervisor_stopped", "process", s.proc, "reason", "stop_requested")
			return nil
		}

		if ShouldReset(uptime, exitCode) {
			s.backoff.Reset()
		}

		delay := s.backoff.Next()
		attempt := int(s.restarts.Add(1))

		if s.callbacks.OnRestart != nil {
			s.callbacks.OnRestart(s.proc, attempt, delay)
		}

		s.logger.Info("process_restart_scheduled",
			"process", s.proc,
			"attempt", attempt,
			"delay", delay.String(),
		)

		s.setState(StateBackoff)
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return ctx.Err()
		case <-s.stopCh:
			s.setState(StateStopped)
			s.logger.Info("supervisor_stopped", "process", s.proc, "reason", "stop_requested")
			return nil
		case <-time.After(delay):
		}
	}
}

// runOnce runs the process once and waits for it to exit.
func (s *Supervisor) runOnce(ctx context.Context) (exitCode int, uptime time.Duration, err error) {
	s.setState(StateStarting)

	cmd, err := s.builder.BuildCommand(ctx)
	if err != nil {
		s.logger.Error("failed_to_build_command",
			"process", s.proc,
			"error", err,
		)
		return 1, 0, err
	}

	// The pipes are owned here, not by exec: Wait closes pipes it
	// created itself the moment the process exits, which races the
	// sinks out of the final output of short-lived children.
	var stdout, stdoutW, stderr, stderrW *os.File
	if s.stdout != nil {
		stdout, stdoutW, err = os.Pipe()
		if err != nil {
			return 1, 0, err
		}
		cmd.Stdout = stdoutW
	}
	if s.stderr != nil {
		stderr, stderrW, err = os.Pipe()
		if err != nil {
			closeFiles(stdout, stdoutW)
			return 1, 0, err
		}
		cmd.Stderr = stderrW
	}

	// Own process group so Stop can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	waitDone := make(chan struct{})
	start := time.Now()
	s.cmdMu.Lock()
	s.cmd = cmd
	s.waitDone = waitDone
	s.startTime = start
	s.cmdMu.Unlock()

	if err := cmd.Start(); err != nil {
		s.logger.Error("failed_to_start_process",
			"process", s.proc,
			"error", err,
		)
		closeFiles(stdout, stdoutW, stderr, stderrW)
		s.clearCmd()
		return 1, 0, err
	}

	// The child owns the write ends now.
	closeFiles(stdoutW, stderrW)

	pid := cmd.Process.Pid
	s.setState(StateRunning)

	s.logger.Info("process_started",
		"process", s.proc,
		"pid", pid,
	)

	var outputWg sync.WaitGroup
	if stdout != nil {
		outputWg.Add(1)
		go func() {
			defer outputWg.Done()
			s.stdout.HandleReader(stdout)
		}()
	}
	if stderr != nil {
		outputWg.Add(1)
		go func() {
			defer outputWg.Done()
			s.stderr.HandleReader(stderr)
		}()
	}

	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(s.proc, pid)
	}

	waitErr := cmd.Wait()
	close(waitDone)
	uptime = time.Since(start)
	exitCode = extractExitCode(waitErr)

	// Sinks hit EOF once the child's write ends close; a lingering
	// grandchild holding a pipe open is cut off after the drain
	// timeout by closing the read ends.
	s.drainOutputs(&outputWg)
	closeFiles(stdout, stderr)

	s.logger.Info("process_exited",
		"process", s.proc,
		"pid", pid,
		"exit_code", exitCode,
		"uptime", uptime.String(),
	)

	s.clearCmd()

	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(s.proc, exitCode, uptime)
	}

	return exitCode, uptime, waitErr
}

// closeFiles closes every non-nil file.
func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

// clearCmd drops the current command reference.
func (s *Supervisor) clearCmd() {
	s.cmdMu.Lock()
	s.cmd = nil
	s.waitDone = nil
	s.cmdMu.Unlock()
}

// drainOutputs waits for output sinks to finish reading, bounded by
// drainTimeout.
func (s *Supervisor) drainOutputs(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		s.logger.Warn("output_drain_timeout",
			"process", s.proc,
			"timeout", drainTimeout.String(),
		)
	}
}

// Stop gracefully stops the supervised process: SIGTERM to the process
// group, then SIGKILL after the graceful-stop timeout. It also marks the
// supervisor as stopping so the run loop does not restart the process.
func (s *Supervisor) Stop() error {
	s.stopping.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.cmdMu.Lock()
	cmd := s.cmd
	waitDone := s.waitDone
	s.cmdMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pgid, pgidErr := syscall.Getpgid(cmd.Process.Pid)
	if pgidErr == nil {
		syscall.Kill(-pgid, syscall.SIGTERM)
	} else {
		cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-waitDone:
		return nil
	case <-time.After(s.gracefulStopTimeout):
		s.logger.Warn("force_killing_process",
			"process", s.proc,
			"pid", cmd.Process.Pid,
			"graceful_stop_timeout", s.gracefulStopTimeout.String(),
		)
		if pgidErr == nil {
			syscall.Kill(-pgid, syscall.SIGKILL)
		} else {
			cmd.Process.Kill()
		}
		<-waitDone
		return errors.New("process did not exit gracefully")
	}
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback on transitions.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(s.proc, oldState, newState)
	}
}

// Process returns the process identity for this supervisor.
func (s *Supervisor) Process() string {
	return s.proc
}

// Restarts returns the number of restarts that have occurred.
func (s *Supervisor) Restarts() int {
	return int(s.restarts.Load())
}

// Pid returns the pid of the running process, or 0 if not running.
func (s *Supervisor) Pid() int {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Uptime returns the current uptime if running, or 0 if not.
func (s *Supervisor) Uptime() time.Duration {
	if s.State() != StateRunning {
		return 0
	}
	s.cmdMu.Lock()
	start := s.startTime
	s.cmdMu.Unlock()
	return time.Since(start)
}

// GracefulStopTimeout returns the configured SIGTERM-to-SIGKILL window.
func (s *Supervisor) GracefulStopTimeout() time.Duration {
	return s.gracefulStopTimeout
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number.
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	return 1
}
