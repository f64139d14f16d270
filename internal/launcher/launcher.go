// Package launcher turns a LaunchDescriptor into a runnable command.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/procfleet/go-proc-fleet/internal/command"
)

// Config holds launcher-level settings shared by all descriptors.
type Config struct {
	// RuntimeBinary is the executable that hosts the entry point
	// (e.g. "java" for JVM entry points).
	RuntimeBinary string

	// TempDir is where argument files are written when a descriptor
	// reads its arguments from a file. Empty means os.TempDir().
	TempDir string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RuntimeBinary: "java",
	}
}

// Launcher builds executable commands for one launch descriptor.
// It holds no live resources; each BuildCommand call is independent.
type Launcher struct {
	desc *command.LaunchDescriptor
	cfg  Config
}

// New creates a Launcher for the given descriptor.
func New(desc *command.LaunchDescriptor, cfg Config) *Launcher {
	if cfg.RuntimeBinary == "" {
		cfg.RuntimeBinary = DefaultConfig().RuntimeBinary
	}
	return &Launcher{
		desc: desc,
		cfg:  cfg,
	}
}

// Name returns the process identity this launcher builds commands for.
func (l *Launcher) Name() string {
	return l.desc.ID().String()
}

// Descriptor returns the descriptor this launcher consumes.
func (l *Launcher) Descriptor() *command.LaunchDescriptor {
	return l.desc
}

// BuildCommand creates a ready-to-start exec.Cmd for the descriptor.
// The command is NOT started. When the descriptor reads arguments from a
// file, the file is written here and its path becomes the trailing
// parameter; the file is rewritten on every call so restarts pick up
// the current configuration.
func (l *Launcher) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	args, err := l.buildArgs(true)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, l.cfg.RuntimeBinary, args...)
	cmd.Dir = l.desc.WorkDir()
	cmd.Env = l.buildEnv(os.Environ())
	return cmd, nil
}

// buildArgs constructs the command-line arguments after the runtime
// binary. writeFiles controls whether the arguments file is actually
// written (diagnostics rendering skips the side effect).
func (l *Launcher) buildArgs(writeFiles bool) ([]string, error) {
	if l.desc.EntryPoint() == "" {
		return nil, fmt.Errorf("descriptor %s: entry point not set", l.desc.ID())
	}

	var args []string

	// Runtime options come first, before the resource path.
	if opts := l.desc.RuntimeOptions(); opts != nil {
		args = append(args, opts.Args()...)
	}

	// Resource paths, joined in add order. Order is the resolution
	// order at launch.
	if paths := l.desc.ResourcePaths(); len(paths) > 0 {
		args = append(args, "-cp", strings.Join(paths, string(os.PathListSeparator)))
	}

	args = append(args, l.desc.EntryPoint())

	// Named arguments: inline, or via a temporary arguments file whose
	// path is the single trailing parameter.
	if l.desc.ReadsArgumentsFromFile() {
		args = append(args, l.desc.Parameters()...)

		path := l.argumentsFilePath()
		if writeFiles {
			if err := l.writeArgumentsFile(path); err != nil {
				return nil, fmt.Errorf("descriptor %s: write arguments file: %w", l.desc.ID(), err)
			}
		}
		args = append(args, path)
	} else {
		args = append(args, inlineArguments(l.desc.Arguments())...)
		args = append(args, l.desc.Parameters()...)
	}

	return args, nil
}

// inlineArguments renders named arguments as --key=value flags, sorted
// by key so the command line is deterministic.
func inlineArguments(named map[string]string) []string {
	keys := make([]string, 0, len(named))
	for k := range named {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("--%s=%s", k, named[k]))
	}
	return out
}

// argumentsFilePath returns the per-process arguments file location.
func (l *Launcher) argumentsFilePath() string {
	dir := l.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("%s.args.properties", l.desc.ID()))
}

// writeArgumentsFile writes the named arguments in properties format,
// one key=value per line, sorted by key. Mode 0600: argument values may
// carry credentials.
func (l *Launcher) writeArgumentsFile(path string) error {
	named := l.desc.Arguments()
	keys := make([]string, 0, len(named))
	for k := range named {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, named[k])
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// buildEnv derives the child environment from a base environment:
// suppressed variables are dropped, then the descriptor overrides are
// applied (sorted, appended last so they win).
func (l *Launcher) buildEnv(base []string) []string {
	env := make([]string, 0, len(base)+len(l.desc.EnvVariables()))
	for _, kv := range base {
		name, _, ok := strings.Cut(kv, "=")
		if ok && l.desc.IsEnvVariableSuppressed(name) {
			continue
		}
		if _, overridden := l.desc.EnvVariables()[name]; ok && overridden {
			continue
		}
		env = append(env, kv)
	}

	overrides := l.desc.EnvVariables()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// CommandString returns the command that would be executed, for
// diagnostics only. It does not write the arguments file.
func (l *Launcher) CommandString() string {
	args, err := l.buildArgs(false)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return l.cfg.RuntimeBinary + " " + strings.Join(args, " ")
}
