// Package supervisor manages the lifecycle of individual managed processes.
package supervisor

// State represents the current state of a supervised process.
type State int

const (
	// StateCreated is the initial state before the process has started.
	StateCreated State = iota

	// StateStarting indicates the process is being spawned.
	StateStarting

	// StateRunning indicates the process is actively running.
	StateRunning

	// StateBackoff indicates the process is waiting before restart.
	StateBackoff

	// StateStopped indicates the process has been permanently stopped.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true if the state represents a process that is running
// or on its way to running again.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateBackoff
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateStopped
}
