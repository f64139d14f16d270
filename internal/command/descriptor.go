package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrGracefulStopTimeoutUnset is returned when the graceful-stop timeout
// is read before it was assigned. This is a programming error in the
// configuration phase, not a runtime condition.
var ErrGracefulStopTimeoutUnset = errors.New("graceful stop timeout has not been set")

// LaunchDescriptor accumulates the parameters needed to start one managed
// process: identity, working directory, entry point, runtime options,
// resource paths, arguments, parameters, environment overrides and the
// graceful-stop timeout.
//
// All mutators return the descriptor so configuration can be chained.
// Collection accessors return the live containers, not copies: callers
// must treat them as owned by the descriptor and must not hold references
// past the configuration phase.
//
// The descriptor is not safe for concurrent mutation. Configure it on one
// goroutine, then hand it off read-only to the launcher.
type LaunchDescriptor struct {
	id      ProcessID
	workDir string

	envVariables  map[string]string
	suppressedEnv map[string]struct{}

	entryPoint     string
	runtimeOptions RuntimeOptions

	// Relative or absolute paths to loadable resources. Order matters:
	// it is the resolution order at launch.
	resourcePaths []string

	arguments  map[string]string
	parameters []string

	readsArgumentsFromFile bool
	gracefulStopTimeout    *time.Duration
}

// New creates a LaunchDescriptor for the given process identity and
// working directory. Both are fixed for the descriptor's lifetime.
func New(id ProcessID, workDir string) *LaunchDescriptor {
	return &LaunchDescriptor{
		id:            id,
		workDir:       workDir,
		envVariables:  make(map[string]string),
		suppressedEnv: make(map[string]struct{}),
		arguments:     make(map[string]string),
	}
}

// ID returns the process identity.
func (d *LaunchDescriptor) ID() ProcessID {
	return d.id
}

// WorkDir returns the working directory the process starts in.
func (d *LaunchDescriptor) WorkDir() string {
	return d.workDir
}

// Arguments returns the named arguments. The returned map is live.
func (d *LaunchDescriptor) Arguments() map[string]string {
	return d.arguments
}

// SetArgument inserts or overwrites a named argument. A nil value removes
// the key instead of storing an empty entry; removing an absent key is
// a no-op.
func (d *LaunchDescriptor) SetArgument(key string, value *string) *LaunchDescriptor {
	if value == nil {
		delete(d.arguments, key)
	} else {
		d.arguments[key] = *value
	}
	return d
}

// SetArguments applies SetArgument for every entry of args, so nil values
// remove their keys. Map iteration order is unspecified, which is fine:
// there is at most one entry per key.
func (d *LaunchDescriptor) SetArguments(args map[string]*string) *LaunchDescriptor {
	for key, value := range args {
		d.SetArgument(key, value)
	}
	return d
}

// Parameters returns the positional parameters in order. The returned
// slice is live.
func (d *LaunchDescriptor) Parameters() []string {
	return d.parameters
}

// AddParameter appends a positional parameter. A nil parameter is
// silently ignored; the sequence never contains placeholders.
func (d *LaunchDescriptor) AddParameter(parameter *string) *LaunchDescriptor {
	if parameter == nil {
		return d
	}
	d.parameters = append(d.parameters, *parameter)
	return d
}

// EntryPoint returns the name of the executable unit the process runs,
// or "" if not set.
func (d *LaunchDescriptor) EntryPoint() string {
	return d.entryPoint
}

// SetEntryPoint assigns the entry point. The format is not validated
// here; the launcher rejects descriptors it cannot turn into a command.
func (d *LaunchDescriptor) SetEntryPoint(name string) *LaunchDescriptor {
	d.entryPoint = name
	return d
}

// RuntimeOptions returns the options bag, or nil if none was set.
func (d *LaunchDescriptor) RuntimeOptions() RuntimeOptions {
	return d.runtimeOptions
}

// SetRuntimeOptions replaces the options bag wholesale. The descriptor
// takes ownership of the value.
func (d *LaunchDescriptor) SetRuntimeOptions(options RuntimeOptions) *LaunchDescriptor {
	d.runtimeOptions = options
	return d
}

// ResourcePaths returns the resource paths in the order they were added.
// The returned slice is live.
func (d *LaunchDescriptor) ResourcePaths() []string {
	return d.resourcePaths
}

// AddResourcePath appends a resource path. Duplicates are kept: the
// launch-time resolution order is exactly the add order.
func (d *LaunchDescriptor) AddResourcePath(path string) *LaunchDescriptor {
	d.resourcePaths = append(d.resourcePaths, path)
	return d
}

// ReadsArgumentsFromFile reports whether the process expects its named
// arguments in a file rather than inline on the command line.
func (d *LaunchDescriptor) ReadsArgumentsFromFile() bool {
	return d.readsArgumentsFromFile
}

// SetReadsArgumentsFromFile assigns the arguments-from-file flag.
func (d *LaunchDescriptor) SetReadsArgumentsFromFile(flag bool) *LaunchDescriptor {
	d.readsArgumentsFromFile = flag
	return d
}

// GracefulStopTimeout returns the assigned graceful-stop timeout, or
// ErrGracefulStopTimeoutUnset if it was never set. There is no default:
// forgetting to set it is a configuration bug that must surface.
func (d *LaunchDescriptor) GracefulStopTimeout() (time.Duration, error) {
	if d.gracefulStopTimeout == nil {
		return 0, ErrGracefulStopTimeoutUnset
	}
	return *d.gracefulStopTimeout, nil
}

// SetGracefulStopTimeout assigns the maximum duration allowed for an
// orderly shutdown before the supervisor kills the process. No range
// validation is performed here.
func (d *LaunchDescriptor) SetGracefulStopTimeout(timeout time.Duration) *LaunchDescriptor {
	d.gracefulStopTimeout = &timeout
	return d
}

// EnvVariables returns the environment overrides. The returned map is live.
func (d *LaunchDescriptor) EnvVariables() map[string]string {
	return d.envVariables
}

// SetEnvVariable overrides one environment variable for the child process.
func (d *LaunchDescriptor) SetEnvVariable(key, value string) *LaunchDescriptor {
	d.envVariables[key] = value
	return d
}

// SuppressedEnvVariables returns the names of inherited environment
// variables that must not be passed to the child, sorted.
func (d *LaunchDescriptor) SuppressedEnvVariables() []string {
	names := make([]string, 0, len(d.suppressedEnv))
	for name := range d.suppressedEnv {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SuppressEnvVariable marks an inherited environment variable as not to
// be passed to the child process.
func (d *LaunchDescriptor) SuppressEnvVariable(key string) *LaunchDescriptor {
	d.suppressedEnv[key] = struct{}{}
	return d
}

// IsEnvVariableSuppressed reports whether key is suppressed.
func (d *LaunchDescriptor) IsEnvVariableSuppressed(key string) bool {
	_, ok := d.suppressedEnv[key]
	return ok
}

// String renders every field for logging. The format is diagnostic only
// and must not be parsed.
func (d *LaunchDescriptor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "LaunchDescriptor{id=%s", d.id)
	fmt.Fprintf(&b, ", workDir=%s", d.workDir)
	fmt.Fprintf(&b, ", entryPoint=%s", d.entryPoint)
	if d.runtimeOptions != nil {
		fmt.Fprintf(&b, ", runtimeOptions=%s", d.runtimeOptions.String())
	} else {
		b.WriteString(", runtimeOptions=<nil>")
	}
	fmt.Fprintf(&b, ", resourcePaths=%v", d.resourcePaths)
	fmt.Fprintf(&b, ", arguments=%v", sortedMap(d.arguments))
	fmt.Fprintf(&b, ", parameters=%v", d.parameters)
	fmt.Fprintf(&b, ", readsArgumentsFromFile=%t", d.readsArgumentsFromFile)
	if d.gracefulStopTimeout != nil {
		fmt.Fprintf(&b, ", gracefulStopTimeout=%s", d.gracefulStopTimeout.String())
	} else {
		b.WriteString(", gracefulStopTimeout=<unset>")
	}
	fmt.Fprintf(&b, ", envVariables=%v", sortedMap(d.envVariables))
	fmt.Fprintf(&b, ", suppressedEnvVariables=%v", d.SuppressedEnvVariables())
	b.WriteString("}")
	return b.String()
}

// sortedMap renders a map deterministically as k=v pairs.
func sortedMap(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return pairs
}
