package command

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func str(s string) *string {
	return &s
}

// =============================================================================
// Table-Driven Tests: SetArgument / SetArguments
// =============================================================================

func TestLaunchDescriptor_SetArgument(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *LaunchDescriptor)
		want  map[string]string
	}{
		{
			name: "insert",
			setup: func(d *LaunchDescriptor) {
				d.SetArgument("key", str("value"))
			},
			want: map[string]string{"key": "value"},
		},
		{
			name: "overwrite",
			setup: func(d *LaunchDescriptor) {
				d.SetArgument("key", str("first")).SetArgument("key", str("second"))
			},
			want: map[string]string{"key": "second"},
		},
		{
			name: "nil value removes existing key",
			setup: func(d *LaunchDescriptor) {
				d.SetArgument("key", str("value")).SetArgument("key", nil)
			},
			want: map[string]string{},
		},
		{
			name: "nil value for absent key is a no-op",
			setup: func(d *LaunchDescriptor) {
				d.SetArgument("missing", nil)
			},
			want: map[string]string{},
		},
		{
			name: "empty string is a real value, not removal",
			setup: func(d *LaunchDescriptor) {
				d.SetArgument("key", str(""))
			},
			want: map[string]string{"key": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New("web", "/tmp")
			tt.setup(d)
			if !reflect.DeepEqual(d.Arguments(), tt.want) {
				t.Errorf("Arguments() = %v, want %v", d.Arguments(), tt.want)
			}
		})
	}
}

func TestLaunchDescriptor_SetArguments_Bulk(t *testing.T) {
	d := New("web", "/tmp")
	d.SetArgument("y", str("old")).SetArgument("x", str("0"))

	// Bulk apply: x set to 1, y removed, regardless of prior state.
	d.SetArguments(map[string]*string{
		"x": str("1"),
		"y": nil,
	})

	want := map[string]string{"x": "1"}
	if !reflect.DeepEqual(d.Arguments(), want) {
		t.Errorf("Arguments() = %v, want %v", d.Arguments(), want)
	}
}

// =============================================================================
// Table-Driven Tests: AddParameter
// =============================================================================

func TestLaunchDescriptor_AddParameter(t *testing.T) {
	tests := []struct {
		name   string
		params []*string
		want   []string
	}{
		{
			name:   "appends in order",
			params: []*string{str("a"), str("b"), str("c")},
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "nil is a silent no-op",
			params: []*string{str("a"), nil, str("b")},
			want:   []string{"a", "b"},
		},
		{
			name:   "nil does not remove an existing equal value",
			params: []*string{str("a"), str("a"), nil},
			want:   []string{"a", "a"},
		},
		{
			name:   "only nils leaves sequence empty",
			params: []*string{nil, nil},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New("ce", "/tmp")
			for _, p := range tt.params {
				d.AddParameter(p)
			}
			if !reflect.DeepEqual(d.Parameters(), tt.want) {
				t.Errorf("Parameters() = %v, want %v", d.Parameters(), tt.want)
			}
		})
	}
}

// =============================================================================
// Table-Driven Tests: AddResourcePath
// =============================================================================

func TestLaunchDescriptor_AddResourcePath_OrderAndDuplicates(t *testing.T) {
	d := New("search", "/tmp")
	d.AddResourcePath("a.jar").AddResourcePath("b.jar").AddResourcePath("a.jar")

	want := []string{"a.jar", "b.jar", "a.jar"}
	if !reflect.DeepEqual(d.ResourcePaths(), want) {
		t.Errorf("ResourcePaths() = %v, want %v", d.ResourcePaths(), want)
	}
}

// =============================================================================
// GracefulStopTimeout
// =============================================================================

func TestLaunchDescriptor_GracefulStopTimeout_UnsetFails(t *testing.T) {
	d := New("web", "/tmp")

	_, err := d.GracefulStopTimeout()
	if !errors.Is(err, ErrGracefulStopTimeoutUnset) {
		t.Fatalf("GracefulStopTimeout() error = %v, want ErrGracefulStopTimeoutUnset", err)
	}
}

func TestLaunchDescriptor_GracefulStopTimeout_SetThenGet(t *testing.T) {
	d := New("web", "/tmp")
	d.SetGracefulStopTimeout(5 * time.Second)

	got, err := d.GracefulStopTimeout()
	if err != nil {
		t.Fatalf("GracefulStopTimeout() unexpected error: %v", err)
	}
	if got != 5*time.Second {
		t.Errorf("GracefulStopTimeout() = %v, want 5s", got)
	}

	// Zero is a valid explicit assignment, distinct from unset.
	d.SetGracefulStopTimeout(0)
	got, err = d.GracefulStopTimeout()
	if err != nil {
		t.Fatalf("GracefulStopTimeout() after zero assignment: %v", err)
	}
	if got != 0 {
		t.Errorf("GracefulStopTimeout() = %v, want 0", got)
	}
}

// =============================================================================
// Fluent chaining
// =============================================================================

func TestLaunchDescriptor_Chaining(t *testing.T) {
	d := New("web", "/var/lib/app").
		SetEntryPoint("org.example.Main").
		SetRuntimeOptions(NewOptionSet("-Xmx512m")).
		AddResourcePath("lib/core.jar").
		SetArgument("http.port", str("9000")).
		AddParameter(str("serve")).
		SetReadsArgumentsFromFile(true).
		SetGracefulStopTimeout(4 * time.Minute).
		SetEnvVariable("LANG", "C").
		SuppressEnvVariable("JAVA_TOOL_OPTIONS")

	if d.EntryPoint() != "org.example.Main" {
		t.Errorf("EntryPoint() = %q", d.EntryPoint())
	}
	if d.RuntimeOptions() == nil || d.RuntimeOptions().String() != "-Xmx512m" {
		t.Errorf("RuntimeOptions() = %v", d.RuntimeOptions())
	}
	if len(d.ResourcePaths()) != 1 || d.ResourcePaths()[0] != "lib/core.jar" {
		t.Errorf("ResourcePaths() = %v", d.ResourcePaths())
	}
	if d.Arguments()["http.port"] != "9000" {
		t.Errorf("Arguments() = %v", d.Arguments())
	}
	if len(d.Parameters()) != 1 || d.Parameters()[0] != "serve" {
		t.Errorf("Parameters() = %v", d.Parameters())
	}
	if !d.ReadsArgumentsFromFile() {
		t.Error("ReadsArgumentsFromFile() = false, want true")
	}
	if timeout, err := d.GracefulStopTimeout(); err != nil || timeout != 4*time.Minute {
		t.Errorf("GracefulStopTimeout() = %v, %v", timeout, err)
	}
	if d.EnvVariables()["LANG"] != "C" {
		t.Errorf("EnvVariables() = %v", d.EnvVariables())
	}
	if !d.IsEnvVariableSuppressed("JAVA_TOOL_OPTIONS") {
		t.Error("IsEnvVariableSuppressed(JAVA_TOOL_OPTIONS) = false")
	}
}

// =============================================================================
// Construction-time fields and options replacement
// =============================================================================

func TestLaunchDescriptor_IdentityAndWorkDir(t *testing.T) {
	d := New("ce", "/opt/work")
	if d.ID() != "ce" {
		t.Errorf("ID() = %q, want %q", d.ID(), "ce")
	}
	if d.WorkDir() != "/opt/work" {
		t.Errorf("WorkDir() = %q, want %q", d.WorkDir(), "/opt/work")
	}
}

func TestLaunchDescriptor_SetRuntimeOptions_ReplacesWholesale(t *testing.T) {
	d := New("web", "/tmp")
	d.SetRuntimeOptions(NewOptionSet("-Xms128m", "-Xmx128m"))
	d.SetRuntimeOptions(NewOptionSet("-Xmx1g"))

	got := d.RuntimeOptions().Args()
	if !reflect.DeepEqual(got, []string{"-Xmx1g"}) {
		t.Errorf("RuntimeOptions().Args() = %v, want [-Xmx1g]", got)
	}
}

// =============================================================================
// Live collection views
// =============================================================================

func TestLaunchDescriptor_AccessorsReturnLiveViews(t *testing.T) {
	d := New("web", "/tmp")
	args := d.Arguments()
	d.SetArgument("k", str("v"))

	// The previously returned map must observe the mutation.
	if args["k"] != "v" {
		t.Errorf("live arguments view missed mutation: %v", args)
	}
}

// =============================================================================
// String rendering
// =============================================================================

func TestLaunchDescriptor_String(t *testing.T) {
	d := New("web", "/var/lib/app").
		SetEntryPoint("org.example.Main").
		SetArgument("http.port", str("9000")).
		SetEnvVariable("LANG", "C").
		SuppressEnvVariable("JAVA_TOOL_OPTIONS")

	s := d.String()
	for _, want := range []string{
		"id=web",
		"workDir=/var/lib/app",
		"entryPoint=org.example.Main",
		"http.port=9000",
		"gracefulStopTimeout=<unset>",
		"LANG=C",
		"JAVA_TOOL_OPTIONS",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q: %s", want, s)
		}
	}
}

// =============================================================================
// ProcessID
// =============================================================================

func TestProcessID_Valid(t *testing.T) {
	tests := []struct {
		id   ProcessID
		want bool
	}{
		{"web", true},
		{"compute-engine-1", true},
		{"", false},
		{"Web", false},
		{"has space", false},
		{"under_score", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			if got := tt.id.Valid(); got != tt.want {
				t.Errorf("ProcessID(%q).Valid() = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestNormalizeProcessID(t *testing.T) {
	if got := NormalizeProcessID("  Web "); got != "web" {
		t.Errorf("NormalizeProcessID = %q, want %q", got, "web")
	}
}
