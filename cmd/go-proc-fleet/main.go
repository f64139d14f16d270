// Package main provides the go-proc-fleet CLI entry point.
//
// go-proc-fleet launches and supervises a fleet of managed child
// processes described by launch descriptors: a runtime binary, runtime
// options, a resource path, named arguments and positional parameters.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/procfleet/go-proc-fleet/internal/config"
	"github.com/procfleet/go-proc-fleet/internal/fleet"
	"github.com/procfleet/go-proc-fleet/internal/launcher"
	"github.com/procfleet/go-proc-fleet/internal/logging"
	"github.com/procfleet/go-proc-fleet/internal/preflight"
	"github.com/procfleet/go-proc-fleet/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-proc-fleet
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-proc-fleet %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When the TUI is enabled, suppress logs so they do not interfere
	// with dashboard rendering.
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.Discard()
	} else {
		logger = logging.NewStderr(logging.Options{
			Format:  cfg.LogFormat,
			Level:   "info",
			Verbose: cfg.Verbose,
		})
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.Check {
		config.ApplyCheckMode(cfg)
		logger.Info("check_mode_enabled", "replicas", cfg.Replicas, "duration", cfg.Duration)
	}

	if cfg.PrintCmd {
		return printCommands(cfg)
	}

	checks := preflight.RunAll(cfg.Replicas, cfg.RuntimeBinary, cfg.WorkDir, cfg.ResourcePaths)
	if !cfg.TUIEnabled {
		preflight.PrintResults(checks)
	}
	if !checks.Passed {
		fmt.Fprintln(os.Stderr, "Preflight checks failed.")
		return 1
	}

	logger.Info("starting",
		"version", version,
		"name", cfg.Name,
		"replicas", cfg.Replicas,
		"runtime", cfg.RuntimeBinary,
		"entry_point", cfg.EntryPoint,
		"metrics_addr", cfg.MetricsAddr,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	fl, err := fleet.New(cfg, version, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fleet error: %v\n", err)
		return 1
	}

	if cfg.TUIEnabled {
		return runWithTUI(fl, cfg)
	}

	if err := fl.Run(context.Background()); err != nil {
		logger.Error("fleet_failed", "error", err)
		return 1
	}
	return 0
}

// runWithTUI runs the fleet alongside the dashboard. Quitting the
// dashboard stops the fleet; the fleet ending closes the dashboard.
func runWithTUI(fl *fleet.Fleet, cfg *config.Config) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tuiCfg := tui.Config{
		Source:          fl.Manager(),
		TargetProcesses: cfg.Replicas,
		MetricsAddr:     cfg.MetricsAddr,
		RunDuration:     cfg.Duration,
	}
	if s := fl.Scraper(); s != nil {
		tuiCfg.Health = s
	}

	program := tea.NewProgram(tui.NewModel(tuiCfg), tea.WithAltScreen())

	errCh := make(chan error, 1)
	go func() {
		errCh <- fl.Run(ctx)
		tui.SendQuit(program)
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
	}

	// The dashboard quit first: stop the fleet and wait for the
	// graceful shutdown to finish.
	cancel()
	if err := <-errCh; err != nil {
		fmt.Fprintf(os.Stderr, "Fleet error: %v\n", err)
		return 1
	}
	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                         go-proc-fleet                             ║")
	fmt.Println("║        Managed Process Fleet Launcher and Supervisor              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Fleet:       %d x %s\n", cfg.Replicas, cfg.Name)
	fmt.Printf("  Runtime:     %s\n", cfg.RuntimeBinary)
	fmt.Printf("  Entry point: %s\n", cfg.EntryPoint)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	if cfg.Duration > 0 {
		fmt.Printf("  Duration:    %s\n", cfg.Duration)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printCommands prints the command line each process would run.
func printCommands(cfg *config.Config) int {
	descriptors, err := fleet.Descriptors(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Descriptor error: %v\n", err)
		return 1
	}

	launcherCfg := launcher.Config{
		RuntimeBinary: cfg.RuntimeBinary,
		TempDir:       cfg.TempDir,
	}

	fmt.Println("# Commands that would be run:")
	fmt.Println()
	for _, desc := range descriptors {
		fmt.Printf("# %s\n", desc.ID())
		fmt.Println(launcher.New(desc, launcherCfg).CommandString())
		fmt.Println()
	}
	return 0
}
