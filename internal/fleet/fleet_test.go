package fleet

import (
	"testing"
	"time"

	"github.com/procfleet/go-proc-fleet/internal/config"
)

func descriptorConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Name = "web"
	cfg.EntryPoint = "org.example.Main"
	cfg.WorkDir = "/srv/app"
	return cfg
}

func TestDescriptors_Single(t *testing.T) {
	cfg := descriptorConfig()
	cfg.ResourcePaths = []string{"lib/app.jar", "lib/deps.jar"}
	cfg.Arguments = []string{"http.port=9000", "cluster.enabled=true"}
	cfg.Parameters = []string{"migrate"}
	cfg.RuntimeOptions = []string{"-Xmx512m"}
	cfg.SetEnv = []string{"ES_JAVA_HOME=/opt/jre"}
	cfg.UnsetEnv = []string{"JAVA_TOOL_OPTIONS"}
	cfg.GracefulStopTimeout = 45 * time.Second

	descs, err := Descriptors(cfg)
	if err != nil {
		t.Fatalf("Descriptors() = %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("len = %d, want 1", len(descs))
	}

	d := descs[0]
	if d.ID() != "web" {
		t.Errorf("ID() = %q, want web (no suffix for single replica)", d.ID())
	}
	if d.WorkDir() != "/srv/app" {
		t.Errorf("WorkDir() = %q", d.WorkDir())
	}
	if d.EntryPoint() != "org.example.Main" {
		t.Errorf("EntryPoint() = %q", d.EntryPoint())
	}
	if got := d.ResourcePaths(); len(got) != 2 || got[0] != "lib/app.jar" {
		t.Errorf("ResourcePaths() = %v", got)
	}
	if got := d.Arguments(); got["http.port"] != "9000" || got["cluster.enabled"] != "true" {
		t.Errorf("Arguments() = %v", got)
	}
	if got := d.Parameters(); len(got) != 1 || got[0] != "migrate" {
		t.Errorf("Parameters() = %v", got)
	}
	if d.RuntimeOptions() == nil || d.RuntimeOptions().String() != "-Xmx512m" {
		t.Errorf("RuntimeOptions() = %v", d.RuntimeOptions())
	}
	if got := d.EnvVariables(); got["ES_JAVA_HOME"] != "/opt/jre" {
		t.Errorf("EnvVariables() = %v", got)
	}
	if !d.IsEnvVariableSuppressed("JAVA_TOOL_OPTIONS") {
		t.Error("JAVA_TOOL_OPTIONS should be suppressed")
	}

	timeout, err := d.GracefulStopTimeout()
	if err != nil {
		t.Fatalf("GracefulStopTimeout() error = %v", err)
	}
	if timeout != 45*time.Second {
		t.Errorf("GracefulStopTimeout() = %v, want 45s", timeout)
	}
}

func TestDescriptors_Replicas(t *testing.T) {
	cfg := descriptorConfig()
	cfg.Replicas = 3

	descs, err := Descriptors(cfg)
	if err != nil {
		t.Fatalf("Descriptors() = %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("len = %d, want 3", len(descs))
	}

	want := []string{"web-1", "web-2", "web-3"}
	for i, d := range descs {
		if d.ID().String() != want[i] {
			t.Errorf("replica %d ID = %q, want %q", i, d.ID(), want[i])
		}
	}
}

func TestDescriptors_TimeoutUnsetByDefault(t *testing.T) {
	descs, err := Descriptors(descriptorConfig())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := descs[0].GracefulStopTimeout(); err == nil {
		t.Error("GracefulStopTimeout() should be unset without the flag")
	}
}

func TestDescriptors_ArgumentValueCopies(t *testing.T) {
	cfg := descriptorConfig()
	cfg.Replicas = 2
	cfg.Arguments = []string{"path.data=/var/data"}

	descs, err := Descriptors(cfg)
	if err != nil {
		t.Fatal(err)
	}

	// Each replica must own its argument values.
	one := new(string)
	*one = "changed"
	descs[0].SetArgument("path.data", one)
	if got := descs[1].Arguments()["path.data"]; got != "/var/data" {
		t.Errorf("replica 2 argument mutated: %q", got)
	}
}

func TestDescriptors_InvalidName(t *testing.T) {
	cfg := descriptorConfig()
	cfg.Name = "Web App"

	if _, err := Descriptors(cfg); err == nil {
		t.Error("Descriptors() with invalid name should fail")
	}
}
