package launcher

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/procfleet/go-proc-fleet/internal/command"
)

func str(s string) *string {
	return &s
}

func testDescriptor(t *testing.T) *command.LaunchDescriptor {
	t.Helper()
	return command.New("web", t.TempDir()).
		SetEntryPoint("org.example.Main").
		SetGracefulStopTimeout(2 * time.Second)
}

// =============================================================================
// Argument assembly
// =============================================================================

func TestLauncher_BuildCommand_InlineArguments(t *testing.T) {
	d := testDescriptor(t).
		SetRuntimeOptions(command.NewOptionSet("-Xmx512m", "-server")).
		AddResourcePath("lib/a.jar").
		AddResourcePath("lib/b.jar").
		SetArgument("http.port", str("9000")).
		SetArgument("cluster.enabled", str("false")).
		AddParameter(str("serve"))

	l := New(d, Config{RuntimeBinary: "java"})
	cmd, err := l.BuildCommand(context.Background())
	if err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}

	sep := string(os.PathListSeparator)
	want := []string{
		"-Xmx512m", "-server",
		"-cp", "lib/a.jar" + sep + "lib/b.jar",
		"org.example.Main",
		"--cluster.enabled=false",
		"--http.port=9000",
		"serve",
	}
	// cmd.Args[0] is the binary path.
	if !reflect.DeepEqual(cmd.Args[1:], want) {
		t.Errorf("args = %v, want %v", cmd.Args[1:], want)
	}
	if cmd.Dir != d.WorkDir() {
		t.Errorf("Dir = %q, want %q", cmd.Dir, d.WorkDir())
	}
}

func TestLauncher_BuildCommand_DuplicateResourcePathsPreserved(t *testing.T) {
	d := testDescriptor(t).
		AddResourcePath("a.jar").
		AddResourcePath("b.jar").
		AddResourcePath("a.jar")

	l := New(d, Config{})
	cmd, err := l.BuildCommand(context.Background())
	if err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}

	sep := string(os.PathListSeparator)
	wantCP := "a.jar" + sep + "b.jar" + sep + "a.jar"
	found := false
	for i, a := range cmd.Args {
		if a == "-cp" && i+1 < len(cmd.Args) {
			found = true
			if cmd.Args[i+1] != wantCP {
				t.Errorf("-cp = %q, want %q", cmd.Args[i+1], wantCP)
			}
		}
	}
	if !found {
		t.Errorf("no -cp in args: %v", cmd.Args)
	}
}

func TestLauncher_BuildCommand_MissingEntryPoint(t *testing.T) {
	d := command.New("web", t.TempDir())

	l := New(d, Config{})
	if _, err := l.BuildCommand(context.Background()); err == nil {
		t.Fatal("BuildCommand succeeded without an entry point")
	}
}

// =============================================================================
// Arguments file mode
// =============================================================================

func TestLauncher_BuildCommand_ArgumentsFile(t *testing.T) {
	tmp := t.TempDir()
	d := testDescriptor(t).
		SetArgument("http.port", str("9000")).
		SetArgument("path.data", str("/var/data")).
		AddParameter(str("serve")).
		SetReadsArgumentsFromFile(true)

	l := New(d, Config{TempDir: tmp})
	cmd, err := l.BuildCommand(context.Background())
	if err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}

	wantPath := filepath.Join(tmp, "web.args.properties")
	last := cmd.Args[len(cmd.Args)-1]
	if last != wantPath {
		t.Fatalf("trailing parameter = %q, want args file %q", last, wantPath)
	}

	// Parameters come before the args file path, named args are not inline.
	joined := strings.Join(cmd.Args, " ")
	if strings.Contains(joined, "--http.port") {
		t.Errorf("named arguments leaked inline: %v", cmd.Args)
	}
	if cmd.Args[len(cmd.Args)-2] != "serve" {
		t.Errorf("positional parameter misplaced: %v", cmd.Args)
	}

	content, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read args file: %v", err)
	}
	want := "http.port=9000\npath.data=/var/data\n"
	if string(content) != want {
		t.Errorf("args file = %q, want %q", content, want)
	}
}

func TestLauncher_BuildCommand_ArgumentsFileRewrittenPerLaunch(t *testing.T) {
	tmp := t.TempDir()
	d := testDescriptor(t).
		SetArgument("key", str("first")).
		SetReadsArgumentsFromFile(true)

	l := New(d, Config{TempDir: tmp})
	if _, err := l.BuildCommand(context.Background()); err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}

	d.SetArgument("key", str("second"))
	if _, err := l.BuildCommand(context.Background()); err != nil {
		t.Fatalf("BuildCommand: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tmp, "web.args.properties"))
	if err != nil {
		t.Fatalf("read args file: %v", err)
	}
	if string(content) != "key=second\n" {
		t.Errorf("args file = %q, want rewritten value", content)
	}
}

// =============================================================================
// Environment assembly
// =============================================================================

func TestLauncher_buildEnv(t *testing.T) {
	d := testDescriptor(t).
		SetEnvVariable("ES_JAVA_HOME", "/opt/jre").
		SetEnvVariable("LANG", "C").
		SuppressEnvVariable("JAVA_TOOL_OPTIONS")

	l := New(d, Config{})
	base := []string{
		"PATH=/usr/bin",
		"JAVA_TOOL_OPTIONS=-agentlib:evil",
		"LANG=en_US.UTF-8",
	}
	env := l.buildEnv(base)

	want := []string{
		"PATH=/usr/bin",
		"ES_JAVA_HOME=/opt/jre",
		"LANG=C",
	}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("buildEnv = %v, want %v", env, want)
	}
}

// =============================================================================
// Diagnostics
// =============================================================================

func TestLauncher_CommandString(t *testing.T) {
	d := testDescriptor(t).
		SetRuntimeOptions(command.NewOptionSet("-Xmx128m")).
		SetArgument("http.port", str("9000"))

	l := New(d, Config{RuntimeBinary: "java"})
	s := l.CommandString()

	for _, want := range []string{"java ", "-Xmx128m", "org.example.Main", "--http.port=9000"} {
		if !strings.Contains(s, want) {
			t.Errorf("CommandString() missing %q: %s", want, s)
		}
	}
}

func TestLauncher_CommandString_DoesNotWriteArgsFile(t *testing.T) {
	tmp := t.TempDir()
	d := testDescriptor(t).
		SetArgument("key", str("value")).
		SetReadsArgumentsFromFile(true)

	l := New(d, Config{TempDir: tmp})
	_ = l.CommandString()

	if _, err := os.Stat(filepath.Join(tmp, "web.args.properties")); !os.IsNotExist(err) {
		t.Error("CommandString must not write the arguments file")
	}
}

func TestLauncher_Name(t *testing.T) {
	l := New(command.New("search", "/tmp"), Config{})
	if l.Name() != "search" {
		t.Errorf("Name() = %q, want %q", l.Name(), "search")
	}
}

func TestLauncher_DefaultRuntimeBinary(t *testing.T) {
	d := testDescriptor(t)
	l := New(d, Config{})
	if !strings.HasPrefix(l.CommandString(), "java ") {
		t.Errorf("CommandString() = %q, want java default", l.CommandString())
	}
}
