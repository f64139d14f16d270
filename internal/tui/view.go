package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/procfleet/go-proc-fleet/internal/metrics"
	"github.com/procfleet/go-proc-fleet/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the full dashboard: header, process table,
// optional child health table, footer.
func (m Model) renderDashboard() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderProcessTable())

	if m.health != nil {
		if health := m.health.AllHealth(); len(health) > 0 {
			sections = append(sections, m.renderHealthTable(health))
		}
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	elapsed := stats.FormatDuration(m.Elapsed())
	if m.runDuration > 0 {
		elapsed = fmt.Sprintf("%s / %s", elapsed, stats.FormatDuration(m.runDuration))
	}

	header := fmt.Sprintf(
		" go-proc-fleet │ Processes: %d/%d │ Restarts: %d │ Output: %s/s │ Elapsed: %s ",
		m.source.ActiveCount(),
		m.targetProcs,
		m.source.RestartCount(),
		stats.FormatBytes(int64(m.source.OutputStats().Avg30s)),
		elapsed,
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Process Table
// =============================================================================

func (m Model) renderProcessTable() string {
	snapshot := m.source.Snapshot()
	if len(snapshot) == 0 {
		return boxStyle.Width(m.width - 2).Render(
			dimStyle.Render("No processes registered."),
		)
	}

	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-20s %-12s %-8s %-12s %-8s",
			"PROCESS", "STATE", "PID", "UPTIME", "RESTARTS"),
	)

	maxRows := m.height - 10
	if maxRows < 5 {
		maxRows = 5
	}

	var rows []string
	for i, ps := range snapshot {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(
				fmt.Sprintf("... and %d more processes", len(snapshot)-maxRows)))
			break
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		pid := "-"
		if ps.Pid > 0 {
			pid = fmt.Sprintf("%d", ps.Pid)
		}
		uptime := "-"
		if ps.Uptime > 0 {
			uptime = stats.FormatDuration(ps.Uptime)
		}

		restartStyle := valueStyle
		if ps.Restarts > 0 {
			restartStyle = valueWarnStyle
		}

		row := lipgloss.JoinHorizontal(lipgloss.Left,
			rowStyle.Width(21).Render(ps.Process),
			lipgloss.NewStyle().Width(13).Render(GetStateLabel(ps.State)),
			rowStyle.Width(9).Render(pid),
			rowStyle.Width(13).Render(uptime),
			restartStyle.Render(fmt.Sprintf("%d", ps.Restarts)),
		)
		rows = append(rows, row)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render("Fleet"),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Child Health Table
// =============================================================================

func (m Model) renderHealthTable(health []metrics.ProcessHealth) string {
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-20s %-8s %-8s %-8s %-10s %-6s",
			"PROCESS", "CPU%", "P50", "MAX", "RSS", "FDS"),
	)

	var rows []string
	for i, h := range health {
		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		if !h.Healthy {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
				rowStyle.Width(21).Render(h.Process),
				valueBadStyle.Render("unreachable "+truncate(h.Error, m.width-40)),
			))
			continue
		}

		row := lipgloss.JoinHorizontal(lipgloss.Left,
			rowStyle.Width(21).Render(h.Process),
			GetCPUStyle(h.CPUPercent).Width(9).Render(fmt.Sprintf("%.1f", h.CPUPercent)),
			rowStyle.Width(9).Render(fmt.Sprintf("%.1f", h.CPUP50)),
			rowStyle.Width(9).Render(fmt.Sprintf("%.1f", h.CPUMax)),
			rowStyle.Width(11).Render(stats.FormatBytes(h.RSSBytes)),
			rowStyle.Render(fmt.Sprintf("%d", h.OpenFDs)),
		)
		rows = append(rows, row)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{
			sectionHeaderStyle.Render("Child Health"),
			header,
		}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	left := dimStyle.Render("q: quit")
	right := dimStyle.Render("Metrics: " + m.metricsAddr)

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

func truncate(s string, max int) string {
	if max < 10 {
		max = 10
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
