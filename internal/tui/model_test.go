package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/procfleet/go-proc-fleet/internal/fleet"
	"github.com/procfleet/go-proc-fleet/internal/metrics"
	"github.com/procfleet/go-proc-fleet/internal/supervisor"
	"github.com/procfleet/go-proc-fleet/internal/timeseries"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSource struct {
	snapshot []fleet.ProcessStatus
	active   int
	restarts int
}

func (f *fakeSource) Snapshot() []fleet.ProcessStatus   { return f.snapshot }
func (f *fakeSource) ActiveCount() int                  { return f.active }
func (f *fakeSource) RestartCount() int                 { return f.restarts }
func (f *fakeSource) OutputStats() timeseries.RateStats { return timeseries.RateStats{} }

type fakeHealth struct {
	health []metrics.ProcessHealth
}

func (f *fakeHealth) AllHealth() []metrics.ProcessHealth { return f.health }

func testModel() Model {
	return NewModel(Config{
		Source: &fakeSource{
			snapshot: []fleet.ProcessStatus{
				{Process: "web-1", State: supervisor.StateRunning, Pid: 101, Uptime: 90 * time.Second},
				{Process: "web-2", State: supervisor.StateBackoff, Restarts: 3},
			},
			active: 1,
		},
		TargetProcesses: 2,
		MetricsAddr:     "0.0.0.0:17091",
	})
}

// =============================================================================
// Update
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c", "esc"} {
		t.Run(key, func(t *testing.T) {
			m := testModel()

			var msg tea.Msg
			switch key {
			case "q":
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}
			case "ctrl+c":
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			case "esc":
				msg = tea.KeyMsg{Type: tea.KeyEsc}
			}

			updated, cmd := m.Update(msg)
			if cmd == nil {
				t.Fatalf("Update(%s) should return tea.Quit", key)
			}
			if !updated.(Model).quitting {
				t.Errorf("Update(%s) should set quitting", key)
			}
		})
	}
}

func TestModel_Update_Tick(t *testing.T) {
	m := testModel()

	_, cmd := m.Update(TickMsg(time.Now()))
	if cmd == nil {
		t.Error("TickMsg should schedule the next tick")
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	m := testModel()

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	um := updated.(Model)
	if um.width != 120 || um.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", um.width, um.height)
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	m := testModel()

	updated, cmd := m.Update(QuitMsg{})
	if cmd == nil {
		t.Fatal("QuitMsg should return tea.Quit")
	}
	if !updated.(Model).quitting {
		t.Error("QuitMsg should set quitting")
	}
}

// =============================================================================
// View
// =============================================================================

func TestModel_View_ProcessTable(t *testing.T) {
	view := testModel().View()

	for _, want := range []string{"web-1", "web-2", "running", "backoff", "101"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_View_HealthTable(t *testing.T) {
	m := testModel()
	m.health = &fakeHealth{health: []metrics.ProcessHealth{
		{Process: "web-1", CPUPercent: 42.5, RSSBytes: 256 << 20, OpenFDs: 87, Healthy: true},
		{Process: "web-2", Healthy: false, Error: "connection refused"},
	}}

	view := m.View()
	if !strings.Contains(view, "Child Health") {
		t.Fatal("view missing health section")
	}
	if !strings.Contains(view, "42.5") {
		t.Error("view missing CPU value")
	}
	if !strings.Contains(view, "unreachable") {
		t.Error("view missing unreachable marker")
	}
}

func TestModel_View_NoHealthSection(t *testing.T) {
	view := testModel().View()
	if strings.Contains(view, "Child Health") {
		t.Error("health section should be absent without a health source")
	}
}

func TestModel_View_Quitting(t *testing.T) {
	m := testModel()
	m.quitting = true

	if !strings.Contains(m.View(), "Shutting down") {
		t.Error("quitting view should show shutdown message")
	}
}
