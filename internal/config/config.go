// Package config provides configuration management for go-proc-fleet.
package config

import "time"

// Config holds all configuration options for the fleet.
type Config struct {
	// Fleet
	Name     string        `json:"name"`     // process identity (or prefix with -replicas > 1)
	Replicas int           `json:"replicas"` // identical processes to run
	Duration time.Duration `json:"duration"` // 0 = forever

	// Launch descriptor
	RuntimeBinary       string        `json:"runtime_binary"`
	WorkDir             string        `json:"work_dir"`
	EntryPoint          string        `json:"entry_point"`
	RuntimeOptions      []string      `json:"runtime_options"`
	ResourcePaths       []string      `json:"resource_paths"`
	Arguments           []string      `json:"arguments"`  // key=value pairs
	Parameters          []string      `json:"parameters"` // positional
	ArgumentsFile       bool          `json:"arguments_file"`
	GracefulStopTimeout time.Duration `json:"graceful_stop_timeout"`
	TempDir             string        `json:"temp_dir"`

	// Environment
	SetEnv   []string `json:"set_env"`   // KEY=VALUE pairs
	UnsetEnv []string `json:"unset_env"` // variable names to suppress

	// Restart policy
	MaxRestarts     int           `json:"max_restarts"` // 0 = unlimited
	BackoffInitial  time.Duration `json:"backoff_initial"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`

	// Observability
	MetricsAddr        string `json:"metrics_addr"`
	PromProcessMetrics bool   `json:"prom_process_metrics"`
	Verbose            bool   `json:"verbose"`
	LogFormat          string `json:"log_format"` // json, text

	// Child health scraping
	ScrapeTargets  []string      `json:"scrape_targets"` // name=url pairs
	ScrapeInterval time.Duration `json:"scrape_interval"`
	ScrapeWindow   time.Duration `json:"scrape_window"`

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// Diagnostic modes
	PrintCmd bool `json:"print_cmd"`
	Check    bool `json:"check"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Fleet
		Name:     "app",
		Replicas: 1,
		Duration: 0, // Forever

		// Launch descriptor
		RuntimeBinary: "java",
		WorkDir:       ".",

		// Restart policy
		MaxRestarts:     0, // Unlimited
		BackoffInitial:  250 * time.Millisecond,
		BackoffMax:      30 * time.Second,
		BackoffMultiply: 1.7,

		// Observability
		MetricsAddr: "0.0.0.0:17091",
		Verbose:     false,
		LogFormat:   "json",

		// Child health scraping
		ScrapeInterval: 2 * time.Second,
		ScrapeWindow:   30 * time.Second,

		// Dashboard
		TUIEnabled: false,
	}
}
