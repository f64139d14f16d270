package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// repeatList is a custom flag type for repeatable flags.
type repeatList []string

func (r *repeatList) String() string {
	return strings.Join(*r, ", ")
}

func (r *repeatList) Set(value string) error {
	*r = append(*r, value)
	return nil
}

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()
	var (
		options    repeatList
		paths      repeatList
		arguments  repeatList
		parameters repeatList
		setEnv     repeatList
		unsetEnv   repeatList
		scrape     repeatList
	)

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-proc-fleet - launch and supervise a fleet of managed processes

Usage:
  go-proc-fleet [flags] <entry.Point>

Fleet Flags:
`)
		printFlagCategory([]string{"name", "replicas", "duration"})

		fmt.Fprintf(os.Stderr, "\nLaunch Descriptor:\n")
		printFlagCategory([]string{"runtime", "workdir", "opt", "cp", "arg", "param", "args-file", "graceful-stop-timeout", "temp-dir"})

		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		printFlagCategory([]string{"setenv", "unsetenv"})

		fmt.Fprintf(os.Stderr, "\nRestart Policy:\n")
		printFlagCategory([]string{"max-restarts", "backoff-initial", "backoff-max", "backoff-multiply"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "prom-process-metrics", "v", "log-format"})

		fmt.Fprintf(os.Stderr, "\nChild Health Scraping:\n")
		printFlagCategory([]string{"scrape", "scrape-interval", "scrape-window"})

		fmt.Fprintf(os.Stderr, "\nDashboard:\n")
		printFlagCategory([]string{"tui"})

		fmt.Fprintf(os.Stderr, "\nSafety & Diagnostics:\n")
		printFlagCategory([]string{"print-cmd", "check"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # One JVM process with a classpath and an inline argument
  go-proc-fleet -cp lib/app.jar -cp lib/deps.jar -arg http.port=9000 org.example.Main

  # Three replicas with arguments handed over in a properties file
  go-proc-fleet -replicas 3 -cp app.jar -args-file -arg path.data=/var/data org.example.Main

  # Print the rendered command line without launching anything
  go-proc-fleet -print-cmd -cp app.jar -opt -Xmx512m org.example.Main

`)
	}

	// Fleet flags
	flag.StringVar(&cfg.Name, "name", cfg.Name, "Process identity (suffixed -1..-N when -replicas > 1)")
	flag.IntVar(&cfg.Replicas, "replicas", cfg.Replicas, "Number of identical processes to run")
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Run duration (0 = forever)")

	// Launch descriptor
	flag.StringVar(&cfg.RuntimeBinary, "runtime", cfg.RuntimeBinary, "Runtime binary to launch")
	flag.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "Working directory for the processes")
	flag.Var(&options, "opt", "Runtime option, e.g. -Xmx512m (can repeat)")
	flag.Var(&paths, "cp", "Resource path for the runtime classpath (can repeat, order kept)")
	flag.Var(&arguments, "arg", "Named argument key=value (can repeat)")
	flag.Var(&parameters, "param", "Positional parameter (can repeat, order kept)")
	flag.BoolVar(&cfg.ArgumentsFile, "args-file", cfg.ArgumentsFile, "Hand named arguments over in a properties file instead of inline")
	flag.DurationVar(&cfg.GracefulStopTimeout, "graceful-stop-timeout", cfg.GracefulStopTimeout, "SIGTERM-to-SIGKILL window per process (0 = supervisor default)")
	flag.StringVar(&cfg.TempDir, "temp-dir", cfg.TempDir, "Directory for argument files (default: os temp dir)")

	// Environment
	flag.Var(&setEnv, "setenv", "Environment override KEY=VALUE (can repeat)")
	flag.Var(&unsetEnv, "unsetenv", "Environment variable to withhold from the child (can repeat)")

	// Restart policy
	flag.IntVar(&cfg.MaxRestarts, "max-restarts", cfg.MaxRestarts, "Restart cap per process (0 = unlimited)")
	flag.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "Initial restart backoff delay")
	flag.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Maximum restart backoff delay")
	flag.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Backoff growth per attempt")

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	flag.BoolVar(&cfg.PromProcessMetrics, "prom-process-metrics", cfg.PromProcessMetrics,
		"Enable per-process Prometheus metrics (one series set per process)")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Child health scraping
	flag.Var(&scrape, "scrape", "Child metrics endpoint name=url (can repeat). "+
		"Scrapes the standard process_* series the child exports itself.")
	flag.DurationVar(&cfg.ScrapeInterval, "scrape-interval", cfg.ScrapeInterval, "Interval for scraping child metrics")
	flag.DurationVar(&cfg.ScrapeWindow, "scrape-window", cfg.ScrapeWindow,
		"Rolling window for child CPU percentiles. Range: 10s-300s.")

	// Dashboard
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	// Safety & Diagnostics
	flag.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the rendered command line and exit")
	flag.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config and run 1 process for 10 seconds")

	// Parse
	flag.Parse()

	cfg.RuntimeOptions = options
	cfg.ResourcePaths = paths
	cfg.Arguments = arguments
	cfg.Parameters = parameters
	cfg.SetEnv = setEnv
	cfg.UnsetEnv = unsetEnv
	cfg.ScrapeTargets = scrape

	// Positional argument: entry point
	args := flag.Args()
	if len(args) >= 1 {
		cfg.EntryPoint = args[0]
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
