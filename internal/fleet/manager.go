// Package fleet coordinates the supervised processes of one run: it
// registers launch descriptors, runs a supervisor per process, and
// shuts the fleet down in reverse start order.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/procfleet/go-proc-fleet/internal/command"
	"github.com/procfleet/go-proc-fleet/internal/launcher"
	"github.com/procfleet/go-proc-fleet/internal/logging"
	"github.com/procfleet/go-proc-fleet/internal/stats"
	"github.com/procfleet/go-proc-fleet/internal/supervisor"
	"github.com/procfleet/go-proc-fleet/internal/timeseries"
)

// ManagerCallbacks contains optional callbacks for manager events.
type ManagerCallbacks struct {
	// OnProcessStateChange is called when any process changes state.
	OnProcessStateChange func(proc string, oldState, newState supervisor.State)

	// OnProcessStart is called when a process starts.
	OnProcessStart func(proc string, pid int)

	// OnProcessExit is called when a process exits.
	OnProcessExit func(proc string, exitCode int, uptime time.Duration)

	// OnProcessRestart is called when a process is about to restart.
	OnProcessRestart func(proc string, attempt int, delay time.Duration)

	// OnForceKill is called when a process ignored SIGTERM during
	// shutdown and had to be killed.
	OnForceKill func(proc string)
}

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	Logger        *slog.Logger
	Launcher      launcher.Config
	BackoffConfig supervisor.BackoffConfig
	MaxRestarts   int
	Verbose       bool
	Callbacks     ManagerCallbacks

	// ConfigSeed seeds per-process backoff jitter. Zero means seed
	// from the clock.
	ConfigSeed int64
}

// member is one registered process and its supervision state.
type member struct {
	desc *command.LaunchDescriptor
	sup  *supervisor.Supervisor

	mu           sync.Mutex
	starts       int
	lastExitCode int
	lastUptime   time.Duration
}

// Manager coordinates the supervisors of all registered processes.
type Manager struct {
	logger        *slog.Logger
	launcherCfg   launcher.Config
	backoffConfig supervisor.BackoffConfig
	maxRestarts   int
	verbose       bool
	callbacks     ManagerCallbacks
	configSeed    int64

	mu      sync.RWMutex
	members map[command.ProcessID]*member
	order   []command.ProcessID // registration order, also start order

	// WaitGroup for all supervisor goroutines
	wg sync.WaitGroup

	activeCount  atomic.Int64
	startedCount atomic.Int64
	restartCount atomic.Int64

	uptimes *stats.UptimeTracker

	// outputRate tracks the combined stdout/stderr volume of all
	// children, in bytes.
	outputRate *timeseries.RateTracker
}

// NewManager creates a new Manager.
func NewManager(cfg ManagerConfig) *Manager {
	seed := cfg.ConfigSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Manager{
		logger:        cfg.Logger,
		launcherCfg:   cfg.Launcher,
		backoffConfig: cfg.BackoffConfig,
		maxRestarts:   cfg.MaxRestarts,
		verbose:       cfg.Verbose,
		callbacks:     cfg.Callbacks,
		configSeed:    seed,
		members:       make(map[command.ProcessID]*member),
		uptimes:       stats.NewUptimeTracker(),
		outputRate:    timeseries.NewRateTracker(),
	}
}

// Register adds a descriptor to the fleet. Registration order is the
// start order; shutdown runs in reverse. Duplicate or invalid
// identities are rejected.
func (m *Manager) Register(desc *command.LaunchDescriptor) error {
	id := desc.ID()
	if !id.Valid() {
		return fmt.Errorf("invalid process identity %q", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.members[id]; exists {
		return fmt.Errorf("process %q already registered", id)
	}

	proc := id.String()
	launch := launcher.New(desc, m.launcherCfg)
	backoff := supervisor.NewBackoff(proc, m.configSeed, m.backoffConfig)

	gracefulStop, err := desc.GracefulStopTimeout()
	if err != nil {
		// Not set on the descriptor, use the supervisor default.
		gracefulStop = 0
	}

	sup := supervisor.New(supervisor.Config{
		Process:             proc,
		Builder:             launch,
		Backoff:             backoff,
		Logger:              m.logger,
		MaxRestarts:         m.maxRestarts,
		GracefulStopTimeout: gracefulStop,
		Stdout:              logging.NewOutputHandler(proc, "stdout", m.logger, m.verbose).SetRateTracker(m.outputRate),
		Stderr:              logging.NewOutputHandler(proc, "stderr", m.logger, m.verbose).SetRateTracker(m.outputRate),
		Callbacks: supervisor.Callbacks{
			OnStateChange: m.handleStateChange,
			OnStart:       m.handleStart,
			OnExit:        m.handleExit,
			OnRestart:     m.handleRestart,
		},
	})

	m.members[id] = &member{desc: desc, sup: sup}
	m.order = append(m.order, id)

	m.logger.Debug("process_registered",
		"process", proc,
		"entry_point", desc.EntryPoint(),
	)
	return nil
}

// StartAll starts every registered process in registration order.
// Each supervisor runs in its own goroutine.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	order := make([]command.ProcessID, len(m.order))
	copy(order, m.order)
	m.mu.RUnlock()

	for _, id := range order {
		m.start(ctx, id)
	}

	m.logger.Info("fleet_started", "processes", len(order))
}

// start launches the supervisor goroutine for one process.
func (m *Manager) start(ctx context.Context, id command.ProcessID) {
	m.mu.RLock()
	mem := m.members[id]
	m.mu.RUnlock()
	if mem == nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := mem.sup.Run(ctx); err != nil {
			// Context cancelled or max restarts reached.
			m.logger.Debug("supervisor_ended",
				"process", id.String(),
				"error", err,
			)
		}
	}()
}

// handleStateChange processes state changes from supervisors.
func (m *Manager) handleStateChange(proc string, oldState, newState supervisor.State) {
	wasActive := oldState == supervisor.StateRunning
	isActive := newState == supervisor.StateRunning

	if !wasActive && isActive {
		m.activeCount.Add(1)
	} else if wasActive && !isActive {
		m.activeCount.Add(-1)
	}

	if m.callbacks.OnProcessStateChange != nil {
		m.callbacks.OnProcessStateChange(proc, oldState, newState)
	}
}

// handleStart processes start events.
func (m *Manager) handleStart(proc string, pid int) {
	m.startedCount.Add(1)

	if mem := m.member(proc); mem != nil {
		mem.mu.Lock()
		mem.starts++
		mem.mu.Unlock()
	}

	if m.callbacks.OnProcessStart != nil {
		m.callbacks.OnProcessStart(proc, pid)
	}
}

// handleExit processes exit events.
func (m *Manager) handleExit(proc string, exitCode int, uptime time.Duration) {
	m.uptimes.Record(uptime)

	if mem := m.member(proc); mem != nil {
		mem.mu.Lock()
		mem.lastExitCode = exitCode
		mem.lastUptime = uptime
		mem.mu.Unlock()
	}

	if m.callbacks.OnProcessExit != nil {
		m.callbacks.OnProcessExit(proc, exitCode, uptime)
	}
}

// handleRestart processes restart events.
func (m *Manager) handleRestart(proc string, attempt int, delay time.Duration) {
	m.restartCount.Add(1)

	if m.callbacks.OnProcessRestart != nil {
		m.callbacks.OnProcessRestart(proc, attempt, delay)
	}
}

// member looks up a member by process name.
func (m *Manager) member(proc string) *member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[command.ProcessID(proc)]
}

// Shutdown stops the fleet: each process gets a graceful stop in
// reverse registration order, then all supervisor goroutines are
// awaited, bounded by the context.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutdown_initiated", "active_processes", m.ActiveCount())

	m.mu.RLock()
	order := make([]command.ProcessID, len(m.order))
	copy(order, m.order)
	m.mu.RUnlock()

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		mem := m.member(id.String())
		if mem == nil {
			continue
		}

		if err := mem.sup.Stop(); err != nil {
			m.logger.Warn("process_force_killed",
				"process", id.String(),
				"error", err,
			)
			if m.callbacks.OnForceKill != nil {
				m.callbacks.OnForceKill(id.String())
			}
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("all_processes_stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown_timeout")
		return ctx.Err()
	}
}

// ActiveCount returns the number of currently running processes.
func (m *Manager) ActiveCount() int {
	return int(m.activeCount.Load())
}

// StartedCount returns the total number of process starts observed.
func (m *Manager) StartedCount() int {
	return int(m.startedCount.Load())
}

// RestartCount returns the total number of restart events.
func (m *Manager) RestartCount() int {
	return int(m.restartCount.Load())
}

// ProcessCount returns the number of registered processes.
func (m *Manager) ProcessCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

// Supervisor returns the supervisor for a specific process.
func (m *Manager) Supervisor(id command.ProcessID) *supervisor.Supervisor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mem, ok := m.members[id]; ok {
		return mem.sup
	}
	return nil
}

// Uptimes returns the fleet uptime tracker.
func (m *Manager) Uptimes() *stats.UptimeTracker {
	return m.uptimes
}

// SampleOutput records an output-rate sample. Call once per second.
func (m *Manager) SampleOutput() {
	m.outputRate.RecordSample()
}

// OutputStats returns rolling averages of the combined child output
// volume in bytes per second.
func (m *Manager) OutputStats() timeseries.RateStats {
	return m.outputRate.GetStats()
}

// ProcessStatus is a point-in-time view of one process for display.
type ProcessStatus struct {
	Process  string
	State    supervisor.State
	Pid      int
	Uptime   time.Duration
	Restarts int
}

// Snapshot returns the status of every process in registration order.
func (m *Manager) Snapshot() []ProcessStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProcessStatus, 0, len(m.order))
	for _, id := range m.order {
		mem := m.members[id]
		out = append(out, ProcessStatus{
			Process:  id.String(),
			State:    mem.sup.State(),
			Pid:      mem.sup.Pid(),
			Uptime:   mem.sup.Uptime(),
			Restarts: mem.sup.Restarts(),
		})
	}
	return out
}

// Summaries returns final per-process numbers for the exit summary,
// in registration order.
func (m *Manager) Summaries() []stats.ProcessSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]stats.ProcessSummary, 0, len(m.order))
	for _, id := range m.order {
		mem := m.members[id]

		mem.mu.Lock()
		s := stats.ProcessSummary{
			Process:      id.String(),
			Pid:          mem.sup.Pid(),
			Starts:       mem.starts,
			Restarts:     mem.sup.Restarts(),
			LastExitCode: mem.lastExitCode,
			LastUptime:   mem.lastUptime,
		}
		mem.mu.Unlock()

		out = append(out, s)
	}
	return out
}
