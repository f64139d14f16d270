package config

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Entry point is required (unless --print-cmd renders a partial command)
	if cfg.EntryPoint == "" && !cfg.PrintCmd {
		errs = append(errs, ValidationError{
			Field:   "entry_point",
			Message: "entry point is required",
		})
	}

	// Process name must be a usable identity
	if !validName(cfg.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("must be lowercase letters, digits and dashes (got %q)", cfg.Name),
		})
	}

	// Replicas must be positive
	if cfg.Replicas < 1 {
		errs = append(errs, ValidationError{
			Field:   "replicas",
			Message: "must be at least 1",
		})
	}

	// Runtime binary must resolve unless we only print the command
	if !cfg.PrintCmd {
		if _, err := exec.LookPath(cfg.RuntimeBinary); err != nil {
			errs = append(errs, ValidationError{
				Field:   "runtime",
				Message: fmt.Sprintf("binary %q not found in PATH", cfg.RuntimeBinary),
			})
		}
	}

	// Named arguments must carry a key
	for _, arg := range cfg.Arguments {
		key, _ := SplitKeyValue(arg)
		if key == "" {
			errs = append(errs, ValidationError{
				Field:   "arg",
				Message: fmt.Sprintf("missing key in %q", arg),
			})
		}
	}

	// Environment overrides must carry a variable name
	for _, kv := range cfg.SetEnv {
		key, _ := SplitKeyValue(kv)
		if key == "" {
			errs = append(errs, ValidationError{
				Field:   "setenv",
				Message: fmt.Sprintf("missing variable name in %q", kv),
			})
		}
	}

	// Graceful stop timeout may be unset (0) but never negative
	if cfg.GracefulStopTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "graceful_stop_timeout",
			Message: "must not be negative",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Backoff settings
	if cfg.BackoffInitial <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must be positive",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}

	// Scrape targets and window (only when scraping is enabled)
	if len(cfg.ScrapeTargets) > 0 {
		for _, target := range cfg.ScrapeTargets {
			name, rawURL := SplitKeyValue(target)
			if name == "" || rawURL == "" {
				errs = append(errs, ValidationError{
					Field:   "scrape",
					Message: fmt.Sprintf("must be name=url (got %q)", target),
				})
				continue
			}
			if err := validateURL(rawURL); err != nil {
				errs = append(errs, ValidationError{
					Field:   "scrape",
					Message: err.Error(),
				})
			}
		}

		const minWindow = 10 * time.Second
		const maxWindow = 300 * time.Second
		if cfg.ScrapeWindow < minWindow {
			errs = append(errs, ValidationError{
				Field:   "scrape_window",
				Message: fmt.Sprintf("must be at least %v (got %v)", minWindow, cfg.ScrapeWindow),
			})
		}
		if cfg.ScrapeWindow > maxWindow {
			errs = append(errs, ValidationError{
				Field:   "scrape_window",
				Message: fmt.Sprintf("must be at most %v (got %v)", maxWindow, cfg.ScrapeWindow),
			})
		}
		// Window should be at least 2x the scrape interval for meaningful percentiles
		if cfg.ScrapeWindow < 2*cfg.ScrapeInterval {
			errs = append(errs, ValidationError{
				Field:   "scrape_window",
				Message: fmt.Sprintf("must be at least 2x scrape interval (%v), got %v", 2*cfg.ScrapeInterval, cfg.ScrapeWindow),
			})
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// SplitKeyValue splits "key=value" into its parts. A missing '=' yields
// the whole input as key with an empty value.
func SplitKeyValue(s string) (key, value string) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// validName reports whether a process name is lowercase alphanumeric
// with dashes, non-empty.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}

// ApplyCheckMode modifies config for --check mode.
func ApplyCheckMode(cfg *Config) {
	cfg.Replicas = 1
	cfg.Duration = 10 * time.Second
	cfg.Verbose = true
}
