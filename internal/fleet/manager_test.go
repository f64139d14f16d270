package fleet

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/procfleet/go-proc-fleet/internal/command"
	"github.com/procfleet/go-proc-fleet/internal/launcher"
	"github.com/procfleet/go-proc-fleet/internal/supervisor"
)

func newTestManager(binary string, maxRestarts int) *Manager {
	return NewManager(ManagerConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Launcher: launcher.Config{RuntimeBinary: binary},
		BackoffConfig: supervisor.BackoffConfig{
			Initial:    5 * time.Millisecond,
			Max:        20 * time.Millisecond,
			Multiplier: 1.5,
			JitterPct:  0,
		},
		MaxRestarts: maxRestarts,
		ConfigSeed:  12345,
	})
}

// echoDescriptor runs "echo <name>" which exits immediately with 0.
func echoDescriptor(name string) *command.LaunchDescriptor {
	return command.New(command.ProcessID(name), ".").SetEntryPoint(name)
}

// sleepDescriptor runs "sleep <seconds>".
func sleepDescriptor(name, seconds string) *command.LaunchDescriptor {
	return command.New(command.ProcessID(name), ".").SetEntryPoint(seconds)
}

func TestManager_Register(t *testing.T) {
	m := newTestManager("echo", 1)

	if err := m.Register(echoDescriptor("web")); err != nil {
		t.Fatalf("Register(web) = %v", err)
	}
	if err := m.Register(echoDescriptor("search")); err != nil {
		t.Fatalf("Register(search) = %v", err)
	}
	if m.ProcessCount() != 2 {
		t.Errorf("ProcessCount() = %d, want 2", m.ProcessCount())
	}
	if m.Supervisor("web") == nil {
		t.Error("Supervisor(web) = nil")
	}
}

func TestManager_Register_Duplicate(t *testing.T) {
	m := newTestManager("echo", 1)

	if err := m.Register(echoDescriptor("web")); err != nil {
		t.Fatalf("first Register = %v", err)
	}
	if err := m.Register(echoDescriptor("web")); err == nil {
		t.Error("duplicate Register should fail")
	}
}

func TestManager_Register_InvalidIdentity(t *testing.T) {
	m := newTestManager("echo", 1)

	desc := command.New(command.ProcessID("Web App"), ".").SetEntryPoint("x")
	if err := m.Register(desc); err == nil {
		t.Error("Register with invalid identity should fail")
	}
}

func TestManager_RunToCompletion(t *testing.T) {
	m := newTestManager("echo", 1)

	if err := m.Register(echoDescriptor("web")); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(echoDescriptor("search")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartAll(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}

	if m.StartedCount() != 2 {
		t.Errorf("StartedCount() = %d, want 2", m.StartedCount())
	}
	if got := m.Uptimes().Count(); got != 2 {
		t.Errorf("Uptimes().Count() = %d, want 2", got)
	}

	sums := m.Summaries()
	if len(sums) != 2 {
		t.Fatalf("Summaries() len = %d, want 2", len(sums))
	}
	if sums[0].Process != "web" || sums[1].Process != "search" {
		t.Errorf("summary order = %s, %s; want registration order", sums[0].Process, sums[1].Process)
	}
	if sums[0].LastExitCode != 0 {
		t.Errorf("web LastExitCode = %d, want 0", sums[0].LastExitCode)
	}
	if sums[0].Starts != 1 {
		t.Errorf("web Starts = %d, want 1", sums[0].Starts)
	}
}

func TestManager_ShutdownStopsRunningProcesses(t *testing.T) {
	m := newTestManager("sleep", 0)

	if err := m.Register(sleepDescriptor("web", "30")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartAll(ctx)

	// Wait for the process to come up.
	deadline := time.After(5 * time.Second)
	for m.ActiveCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("process never became active")
		case <-time.After(10 * time.Millisecond):
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}

	if m.ActiveCount() != 0 {
		t.Errorf("ActiveCount() after shutdown = %d, want 0", m.ActiveCount())
	}

	// sleep has no TERM handler, so it dies with 143.
	sums := m.Summaries()
	if sums[0].LastExitCode != 143 {
		t.Errorf("LastExitCode = %d, want 143 (SIGTERM)", sums[0].LastExitCode)
	}
}

func TestManager_Snapshot(t *testing.T) {
	m := newTestManager("echo", 1)
	_ = m.Register(echoDescriptor("web"))
	_ = m.Register(echoDescriptor("search"))

	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() len = %d, want 2", len(snap))
	}
	if snap[0].Process != "web" || snap[1].Process != "search" {
		t.Errorf("snapshot order = %s, %s; want registration order", snap[0].Process, snap[1].Process)
	}
	if snap[0].State != supervisor.StateCreated {
		t.Errorf("initial state = %v, want created", snap[0].State)
	}
}

func TestManager_RestartCallback(t *testing.T) {
	var restarts int
	done := make(chan struct{})

	m := NewManager(ManagerConfig{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Launcher: launcher.Config{RuntimeBinary: "bash"},
		BackoffConfig: supervisor.BackoffConfig{
			Initial:    5 * time.Millisecond,
			Max:        20 * time.Millisecond,
			Multiplier: 1.5,
			JitterPct:  0,
		},
		MaxRestarts: 2,
		ConfigSeed:  1,
		Callbacks: ManagerCallbacks{
			OnProcessRestart: func(proc string, attempt int, delay time.Duration) {
				restarts++
			},
		},
	})

	// bash -c "exit 1": fails every run, so the restart cap is reached.
	desc := command.New("web", ".").
		SetEntryPoint("-c")
	p := "exit 1"
	desc.AddParameter(&p)
	if err := m.Register(desc); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartAll(ctx)

	go func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
		defer c()
		_ = m.Shutdown(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("fleet did not stop after max restarts")
	}

	if restarts != 2 {
		t.Errorf("restart callbacks = %d, want 2", restarts)
	}
	if m.RestartCount() != 2 {
		t.Errorf("RestartCount() = %d, want 2", m.RestartCount())
	}
}
