// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks for a fleet of the given size.
func RunAll(replicas int, runtimeBinary, workDir string, resourcePaths []string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	fdCheck := checkFileDescriptors(replicas)
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	procCheck := checkProcessLimit(replicas)
	result.Checks = append(result.Checks, procCheck)
	if !procCheck.Passed {
		result.Passed = false
	}

	runtimeCheck := checkRuntimeBinary(runtimeBinary)
	result.Checks = append(result.Checks, runtimeCheck)
	if !runtimeCheck.Passed {
		result.Passed = false
	}

	workDirCheck := checkWorkDir(workDir)
	result.Checks = append(result.Checks, workDirCheck)
	if !workDirCheck.Passed {
		result.Passed = false
	}

	// Resource path check is a warning only: entries may be created
	// by the child itself or mounted later.
	if len(resourcePaths) > 0 {
		result.Checks = append(result.Checks, checkResourcePaths(resourcePaths))
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(replicas int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Each child needs pipes and its own sockets and files, plus
	// supervisor overhead (metrics server, logging).
	required := replicas*20 + 100
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d processes)", actual, required, replicas),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(replicas int) Check {
	required := replicas + 50

	// Read soft limit from /proc/self/limits
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	// Parse "Max processes" line
	actual := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "Max processes") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				if fields[3] == "unlimited" {
					actual = 1000000
				} else {
					fmt.Sscanf(fields[3], "%d", &actual)
				}
			}
			break
		}
	}

	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// checkRuntimeBinary verifies the runtime binary can be found.
func checkRuntimeBinary(binary string) Check {
	path, err := exec.LookPath(binary)
	if err != nil {
		return Check{
			Name:    "runtime_binary",
			Passed:  false,
			Message: fmt.Sprintf("%s not found: %v", binary, err),
		}
	}

	return Check{
		Name:    "runtime_binary",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkWorkDir verifies the working directory exists.
func checkWorkDir(dir string) Check {
	info, err := os.Stat(dir)
	if err != nil {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", dir, err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    "work_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}

	return Check{
		Name:    "work_dir",
		Passed:  true,
		Message: dir,
	}
}

// checkResourcePaths reports resource path entries that do not exist.
func checkResourcePaths(paths []string) Check {
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}

	if len(missing) > 0 {
		return Check{
			Name:    "resource_paths",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%d of %d entries missing: %s", len(missing), len(paths), strings.Join(missing, ", ")),
		}
	}

	return Check{
		Name:    "resource_paths",
		Passed:  true,
		Message: fmt.Sprintf("%d entries present", len(paths)),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "runtime_binary":
		return "install the runtime or pass -runtime with a full path"
	case "work_dir":
		return "create the directory or pass -workdir with an existing one"
	default:
		return "see documentation"
	}
}
