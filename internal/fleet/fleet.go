package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/procfleet/go-proc-fleet/internal/command"
	"github.com/procfleet/go-proc-fleet/internal/config"
	"github.com/procfleet/go-proc-fleet/internal/launcher"
	"github.com/procfleet/go-proc-fleet/internal/metrics"
	"github.com/procfleet/go-proc-fleet/internal/stats"
	"github.com/procfleet/go-proc-fleet/internal/supervisor"
)

// shutdownTimeout bounds how long Run waits for the fleet to stop
// after the per-process graceful stops have been issued.
const shutdownTimeout = 30 * time.Second

// Fleet coordinates all components of one supervised run.
type Fleet struct {
	config *config.Config
	logger *slog.Logger

	manager       *Manager
	collector     *metrics.Collector
	metricsServer *metrics.Server
	scraper       *metrics.HealthScraper

	startTime time.Time
}

// New creates a Fleet from the given configuration. Descriptors are
// built and registered up front so configuration problems surface
// before anything is launched.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Fleet, error) {
	descriptors, err := Descriptors(cfg)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(metrics.CollectorConfig{
		Version:           version,
		RuntimeBinary:     cfg.RuntimeBinary,
		TargetProcesses:   cfg.Replicas,
		RunDuration:       cfg.Duration,
		PerProcessMetrics: cfg.PromProcessMetrics,
	})
	metricsServer := metrics.NewServer(cfg.MetricsAddr, collector, logger)

	f := &Fleet{
		config:        cfg,
		logger:        logger,
		collector:     collector,
		metricsServer: metricsServer,
	}

	f.manager = NewManager(ManagerConfig{
		Logger: logger,
		Launcher: launcher.Config{
			RuntimeBinary: cfg.RuntimeBinary,
			TempDir:       cfg.TempDir,
		},
		BackoffConfig: supervisor.BackoffConfig{
			Initial:    cfg.BackoffInitial,
			Max:        cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiply,
			JitterPct:  0.4,
		},
		MaxRestarts: cfg.MaxRestarts,
		Verbose:     cfg.Verbose,
		Callbacks: ManagerCallbacks{
			OnProcessStart:   f.onStart,
			OnProcessExit:    f.onExit,
			OnProcessRestart: f.onRestart,
			OnForceKill:      f.onForceKill,
		},
	})

	for _, desc := range descriptors {
		if err := f.manager.Register(desc); err != nil {
			return nil, err
		}
	}

	// Child health scraping (optional)
	var targets []metrics.HealthTarget
	for _, t := range cfg.ScrapeTargets {
		name, url := config.SplitKeyValue(t)
		targets = append(targets, metrics.HealthTarget{Process: name, URL: url})
	}
	f.scraper = metrics.NewHealthScraper(targets, cfg.ScrapeInterval, cfg.ScrapeWindow, collector, logger)

	return f, nil
}

// Descriptors builds the launch descriptors the configuration asks
// for: one per replica, identity suffixed with the replica number when
// more than one.
func Descriptors(cfg *config.Config) ([]*command.LaunchDescriptor, error) {
	out := make([]*command.LaunchDescriptor, 0, cfg.Replicas)

	for i := 0; i < cfg.Replicas; i++ {
		name := cfg.Name
		if cfg.Replicas > 1 {
			name = fmt.Sprintf("%s-%d", cfg.Name, i+1)
		}

		id := command.ProcessID(name)
		if !id.Valid() {
			return nil, fmt.Errorf("invalid process identity %q", name)
		}

		desc := command.New(id, cfg.WorkDir).
			SetEntryPoint(cfg.EntryPoint).
			SetReadsArgumentsFromFile(cfg.ArgumentsFile)

		if len(cfg.RuntimeOptions) > 0 {
			desc.SetRuntimeOptions(command.NewOptionSet(cfg.RuntimeOptions...))
		}
		for _, path := range cfg.ResourcePaths {
			desc.AddResourcePath(path)
		}
		for _, arg := range cfg.Arguments {
			key, value := config.SplitKeyValue(arg)
			desc.SetArgument(key, &value)
		}
		for _, param := range cfg.Parameters {
			p := param
			desc.AddParameter(&p)
		}
		for _, kv := range cfg.SetEnv {
			key, value := config.SplitKeyValue(kv)
			desc.SetEnvVariable(key, value)
		}
		for _, key := range cfg.UnsetEnv {
			desc.SuppressEnvVariable(key)
		}
		if cfg.GracefulStopTimeout > 0 {
			desc.SetGracefulStopTimeout(cfg.GracefulStopTimeout)
		}

		out = append(out, desc)
	}

	return out, nil
}

// Run executes the fleet. It blocks until the duration elapses, a
// signal arrives, or the context is cancelled.
func (f *Fleet) Run(ctx context.Context) error {
	f.startTime = time.Now()

	if err := f.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	f.logger.Info("fleet_starting",
		"processes", f.manager.ProcessCount(),
		"runtime", f.config.RuntimeBinary,
		"entry_point", f.config.EntryPoint,
	)

	f.manager.StartAll(ctx)

	if f.scraper != nil {
		go f.scraper.Run(ctx)
	}

	go f.sampleOutputLoop(ctx)

	var durationTimer <-chan time.Time
	if f.config.Duration > 0 {
		durationTimer = time.After(f.config.Duration)
	}

	select {
	case sig := <-sigCh:
		f.logger.Info("received_signal", "signal", sig.String())
	case <-durationTimer:
		f.logger.Info("duration_elapsed", "duration", f.config.Duration.String())
	case <-ctx.Done():
		f.logger.Info("context_cancelled")
	}

	// Stop processes gracefully before cancelling the run context;
	// cancelling first would SIGKILL through exec.CommandContext and
	// skip every SIGTERM window.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := f.manager.Shutdown(shutdownCtx); err != nil {
		f.logger.Warn("shutdown_incomplete", "error", err)
	}
	cancel()

	if err := f.metricsServer.Shutdown(shutdownCtx); err != nil {
		f.logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	f.printExitSummary()

	return nil
}

// sampleOutputLoop records one output-rate sample per second so the
// dashboard can show rolling averages.
func (f *Fleet) sampleOutputLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.manager.SampleOutput()
		}
	}
}

// Callback handlers

func (f *Fleet) onStart(proc string, pid int) {
	f.collector.ProcessStarted(proc)

	if f.config.Verbose {
		f.logger.Debug("fleet_process_started", "process", proc, "pid", pid)
	}
}

func (f *Fleet) onExit(proc string, exitCode int, uptime time.Duration) {
	f.collector.RecordExit(proc, exitCode, uptime)
}

func (f *Fleet) onRestart(proc string, attempt int, delay time.Duration) {
	f.collector.ProcessRestarted(proc, attempt)

	if f.config.Verbose {
		f.logger.Debug("fleet_restart_scheduled",
			"process", proc,
			"attempt", attempt,
			"delay", delay.String(),
		)
	}
}

func (f *Fleet) onForceKill(proc string) {
	f.collector.RecordForceKill(proc)
}

// printExitSummary prints a summary of the run to stdout.
func (f *Fleet) printExitSummary() {
	summary := f.collector.GenerateSummary()

	fmt.Print(stats.FormatExitSummary(f.manager.Uptimes(), f.manager.Summaries(), stats.SummaryConfig{
		TargetProcesses: summary.TargetProcesses,
		Duration:        summary.Duration,
		MetricsAddr:     f.config.MetricsAddr,
		ShowPerProcess:  true,
		ExitCodes:       summary.ExitCodes,
		TotalStarts:     summary.TotalStarts,
		TotalRestarts:   summary.TotalRestarts,
		ForceKills:      summary.ForceKills,
	}))
}

// Manager returns the fleet manager for external access.
func (f *Fleet) Manager() *Manager {
	return f.manager
}

// Collector returns the metrics collector for external access.
func (f *Fleet) Collector() *metrics.Collector {
	return f.collector
}

// Scraper returns the child health scraper, or nil when disabled.
func (f *Fleet) Scraper() *metrics.HealthScraper {
	return f.scraper
}
