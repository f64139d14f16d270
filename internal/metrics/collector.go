// Package metrics provides Prometheus metrics for go-proc-fleet.
//
// Metrics are organized into two tiers:
//   - Tier 1 (always enabled): Aggregate fleet metrics
//   - Tier 2 (optional, --prom-process-metrics): Per-process metrics
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Tier 1: Aggregate Metrics (Always Enabled)
// =============================================================================

var (
	fleetInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proc_fleet_info",
			Help: "Information about the fleet run (value always 1)",
		},
		[]string{"version", "runtime_binary"},
	)

	fleetTargetProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proc_fleet_target_processes",
			Help: "Number of processes the fleet is configured to run",
		},
	)

	fleetActiveProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proc_fleet_active_processes",
			Help: "Currently running processes",
		},
	)

	fleetRunDurationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proc_fleet_run_duration_seconds",
			Help: "Configured run duration (0 = unlimited)",
		},
	)

	fleetElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proc_fleet_elapsed_seconds",
			Help: "Seconds since the fleet started",
		},
	)

	processStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proc_fleet_process_starts_total",
			Help: "Total process starts",
		},
	)

	processRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proc_fleet_process_restarts_total",
			Help: "Total process restarts (after failure)",
		},
	)

	processExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proc_fleet_process_exits_total",
			Help: "Process exits by exit code category",
		},
		[]string{"category"}, // "success", "error", "signal"
	)

	processUptimeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proc_fleet_process_uptime_seconds",
			Help:    "Process uptime before exit",
			Buckets: []float64{1, 5, 30, 60, 300, 600, 1800, 3600, 7200},
		},
	)

	forceKillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proc_fleet_force_kills_total",
			Help: "Processes that ignored SIGTERM and were killed",
		},
	)
)

// =============================================================================
// Tier 2: Per-Process Metrics (Optional, --prom-process-metrics)
// =============================================================================

var (
	processUp         *prometheus.GaugeVec
	processRestarts   *prometheus.GaugeVec
	processCPUPercent *prometheus.GaugeVec
	processRSSBytes   *prometheus.GaugeVec
)

// initPerProcessMetrics initializes Tier 2 metrics.
// Only called when --prom-process-metrics is enabled.
func initPerProcessMetrics(registry prometheus.Registerer) {
	processUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proc_fleet_process_up",
			Help: "Per-process running state (requires --prom-process-metrics)",
		},
		[]string{"process"},
	)

	processRestarts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proc_fleet_process_restarts",
			Help: "Per-process restart count (requires --prom-process-metrics)",
		},
		[]string{"process"},
	)

	processCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proc_fleet_process_cpu_percent",
			Help: "Per-process CPU usage scraped from its metrics endpoint",
		},
		[]string{"process"},
	)

	processRSSBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proc_fleet_process_rss_bytes",
			Help: "Per-process resident memory scraped from its metrics endpoint",
		},
		[]string{"process"},
	)

	registry.MustRegister(processUp, processRestarts, processCPUPercent, processRSSBytes)
}

// =============================================================================
// Collector
// =============================================================================

// Collector manages all Prometheus metrics for the fleet.
type Collector struct {
	perProcessEnabled bool
	targetProcesses   int
	runDuration       time.Duration

	startTime time.Time

	mu            sync.Mutex
	peakActive    int
	active        int
	totalStarts   int
	totalRestarts int
	forceKills    int
	exitCodes     map[int]int
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version           string
	RuntimeBinary     string
	TargetProcesses   int
	RunDuration       time.Duration
	PerProcessMetrics bool
}

// NewCollector creates a new metrics collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		perProcessEnabled: cfg.PerProcessMetrics,
		targetProcesses:   cfg.TargetProcesses,
		runDuration:       cfg.RunDuration,
		startTime:         time.Now(),
		exitCodes:         make(map[int]int),
	}

	registry.MustRegister(
		fleetInfo,
		fleetTargetProcesses,
		fleetActiveProcesses,
		fleetRunDurationSeconds,
		fleetElapsedSeconds,
		processStartsTotal,
		processRestartsTotal,
		processExitsTotal,
		processUptimeSeconds,
		forceKillsTotal,
	)

	if cfg.PerProcessMetrics {
		initPerProcessMetrics(registry)
	}

	fleetInfo.WithLabelValues(cfg.Version, cfg.RuntimeBinary).Set(1)
	fleetTargetProcesses.Set(float64(cfg.TargetProcesses))
	fleetRunDurationSeconds.Set(cfg.RunDuration.Seconds())

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// ProcessStarted records a process start event.
func (c *Collector) ProcessStarted(proc string) {
	processStartsTotal.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.active++
	if c.active > c.peakActive {
		c.peakActive = c.active
	}
	active := c.active
	c.mu.Unlock()

	fleetActiveProcesses.Set(float64(active))
	fleetElapsedSeconds.Set(time.Since(c.startTime).Seconds())

	if c.perProcessEnabled {
		processUp.WithLabelValues(proc).Set(1)
	}
}

// ProcessRestarted records a restart attempt for a process.
func (c *Collector) ProcessRestarted(proc string, attempt int) {
	processRestartsTotal.Inc()

	c.mu.Lock()
	c.totalRestarts++
	c.mu.Unlock()

	if c.perProcessEnabled {
		processRestarts.WithLabelValues(proc).Set(float64(attempt))
	}
}

// RecordExit records a process exit event.
func (c *Collector) RecordExit(proc string, exitCode int, uptime time.Duration) {
	category := "error"
	if exitCode == 0 {
		category = "success"
	} else if exitCode > 128 {
		category = "signal"
	}
	processExitsTotal.WithLabelValues(category).Inc()
	processUptimeSeconds.Observe(uptime.Seconds())

	c.mu.Lock()
	c.exitCodes[exitCode]++
	if c.active > 0 {
		c.active--
	}
	active := c.active
	c.mu.Unlock()

	fleetActiveProcesses.Set(float64(active))

	if c.perProcessEnabled {
		processUp.WithLabelValues(proc).Set(0)
	}
}

// RecordForceKill records a process that had to be SIGKILLed.
func (c *Collector) RecordForceKill(proc string) {
	forceKillsTotal.Inc()

	c.mu.Lock()
	c.forceKills++
	c.mu.Unlock()
}

// RecordHealth records scraped health numbers for a process.
// No-op unless per-process metrics are enabled.
func (c *Collector) RecordHealth(proc string, cpuPercent float64, rssBytes int64) {
	if !c.perProcessEnabled {
		return
	}
	processCPUPercent.WithLabelValues(proc).Set(cpuPercent)
	processRSSBytes.WithLabelValues(proc).Set(float64(rssBytes))
}

// RemoveProcess removes per-process metrics for a process.
func (c *Collector) RemoveProcess(proc string) {
	if !c.perProcessEnabled {
		return
	}
	processUp.DeleteLabelValues(proc)
	processRestarts.DeleteLabelValues(proc)
	processCPUPercent.DeleteLabelValues(proc)
	processRSSBytes.DeleteLabelValues(proc)
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Duration        time.Duration
	TargetProcesses int
	PeakActive      int
	TotalStarts     int
	TotalRestarts   int
	ForceKills      int
	ExitCodes       map[int]int
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:        time.Since(c.startTime),
		TargetProcesses: c.targetProcesses,
		PeakActive:      c.peakActive,
		TotalStarts:     c.totalStarts,
		TotalRestarts:   c.totalRestarts,
		ForceKills:      c.forceKills,
		ExitCodes:       make(map[int]int),
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	return s
}

// ActiveCount returns the current active process count.
func (c *Collector) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// PeakActive returns the peak active process count.
func (c *Collector) PeakActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakActive
}

// TotalStarts returns the total number of process starts.
func (c *Collector) TotalStarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}

// TotalRestarts returns the total number of restarts.
func (c *Collector) TotalRestarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalRestarts
}

// PerProcessEnabled returns whether per-process metrics are enabled.
func (c *Collector) PerProcessEnabled() bool {
	return c.perProcessEnabled
}
