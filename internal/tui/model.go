package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/procfleet/go-proc-fleet/internal/fleet"
	"github.com/procfleet/go-proc-fleet/internal/metrics"
	"github.com/procfleet/go-proc-fleet/internal/timeseries"
)

// =============================================================================
// Data Sources
// =============================================================================

// SnapshotSource provides the live process table. fleet.Manager
// implements it.
type SnapshotSource interface {
	Snapshot() []fleet.ProcessStatus
	ActiveCount() int
	RestartCount() int
	OutputStats() timeseries.RateStats
}

// HealthSource provides per-child health samples. metrics.HealthScraper
// implements it.
type HealthSource interface {
	AllHealth() []metrics.ProcessHealth
}

// =============================================================================
// Messages
// =============================================================================

// TickMsg triggers a dashboard refresh.
type TickMsg time.Time

// QuitMsg tells the TUI to exit.
type QuitMsg struct{}

// tickInterval is the dashboard refresh rate.
const tickInterval = 500 * time.Millisecond

// =============================================================================
// Model
// =============================================================================

// Config holds the static inputs of the dashboard.
type Config struct {
	Source          SnapshotSource
	Health          HealthSource
	TargetProcesses int
	MetricsAddr     string
	RunDuration     time.Duration
}

// Model is the Bubble Tea model for the fleet dashboard.
type Model struct {
	source      SnapshotSource
	health      HealthSource
	targetProcs int
	metricsAddr string
	runDuration time.Duration

	startTime time.Time
	width     int
	height    int
	quitting  bool
}

// NewModel creates the dashboard model.
func NewModel(cfg Config) Model {
	return Model{
		source:      cfg.Source,
		health:      cfg.Health,
		targetProcs: cfg.TargetProcesses,
		metricsAddr: cfg.MetricsAddr,
		runDuration: cfg.RunDuration,
		startTime:   time.Now(),
		width:       100,
		height:      30,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return "Shutting down fleet...\n"
	}
	return m.renderDashboard()
}

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// tickCmd schedules the next refresh.
func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// SendQuit asks a running program to exit, for use when the run ends
// on its own (duration elapsed, all processes stopped).
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
