package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProcessSummary holds the final lifecycle numbers for one managed
// process, as reported by the fleet manager at shutdown.
type ProcessSummary struct {
	Process      string
	Pid          int
	Starts       int
	Restarts     int
	LastExitCode int
	LastUptime   time.Duration
}

// SummaryConfig holds configuration for exit summary formatting.
type SummaryConfig struct {
	// TargetProcesses is the number of processes the fleet was asked to run
	TargetProcesses int

	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// ShowPerProcess enables the per-process breakdown table
	ShowPerProcess bool

	// ExitCodes is a map of exit codes to counts (from metrics.Collector)
	ExitCodes map[int]int

	// TotalStarts is the total number of process starts
	TotalStarts int

	// TotalRestarts is the total number of process restarts
	TotalRestarts int

	// ForceKills is the number of processes that ignored SIGTERM and
	// had to be killed
	ForceKills int
}

// FormatExitSummary formats fleet lifecycle stats for display at
// program exit.
func FormatExitSummary(uptimes *UptimeTracker, procs []ProcessSummary, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                          go-proc-fleet Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Target Processes:       %d\n\n", cfg.TargetProcesses)

	// Lifecycle
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                Lifecycle\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Total Starts:         %d\n", cfg.TotalStarts)
	fmt.Fprintf(&b, "  Total Restarts:       %d\n", cfg.TotalRestarts)
	if cfg.ForceKills > 0 {
		fmt.Fprintf(&b, "  Force Kills:          %d\n", cfg.ForceKills)
	}
	b.WriteString("\n")

	// Uptime distribution
	if uptimes != nil && uptimes.Count() > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                            Uptime Distribution\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatDuration(uptimes.P50()))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatDuration(uptimes.P95()))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatDuration(uptimes.P99()))
		fmt.Fprintf(&b, "  Min / Avg / Max:      %s / %s / %s\n",
			FormatDuration(uptimes.Min()),
			FormatDuration(uptimes.Average()),
			FormatDuration(uptimes.Max()),
		)
		b.WriteString("\n")
	}

	// Exit codes
	if len(cfg.ExitCodes) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                Exit Codes\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			count := cfg.ExitCodes[code]
			label := exitCodeLabel(code)
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, label, count)
		}
		b.WriteString("\n")
	}

	// Per-process breakdown
	if cfg.ShowPerProcess && len(procs) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                               Per Process\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  %-20s %8s %8s %10s %12s\n", "Process", "Starts", "Restarts", "Last Exit", "Last Uptime")
		b.WriteString("  " + strings.Repeat("─", 62) + "\n")
		for _, p := range procs {
			fmt.Fprintf(&b, "  %-20s %8d %8d %10d %12s\n",
				p.Process,
				p.Starts,
				p.Restarts,
				p.LastExitCode,
				FormatDuration(p.LastUptime),
			)
		}
		b.WriteString("\n")
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}
