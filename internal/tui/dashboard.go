package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/luxops/luxfleet/pkg/models"
)

// DashModel renders the live view of a fleet run: batch progress, outcome
// counters and the most recent failures.
type DashModel struct {
	cmd      string
	total    int
	report   models.Report
	start    time.Time
	progress progress.Model
	perBatch []int // ok counts per finished batch, for the sparkline
	lastErrs []string
	tick     int
}

func NewDashModel(cmd string, total int) *DashModel {
	p := progress.New(
		progress.WithScaledGradient("#00FFFF", "#FF6B9D"),
		progress.WithoutPercentage(),
	)
	return &DashModel{
		cmd:      cmd,
		total:    total,
		start:    time.Now(),
		progress: p,
	}
}

func (m *DashModel) Init() tea.Cmd {
	return nil
}

func (m *DashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case models.Report:
		m.report = msg
		m.tick++
	case batchDoneMsg:
		m.perBatch = append(m.perBatch, msg.ok)
	case failureMsg:
		m.lastErrs = append(m.lastErrs, string(msg))
		if len(m.lastErrs) > 5 {
			m.lastErrs = m.lastErrs[len(m.lastErrs)-5:]
		}
	}
	return m, nil
}

func (m *DashModel) View() string {
	var s strings.Builder

	logo := logoStyle.Render(asciiLogo)
	s.WriteString(borderStyle.Render(logo))
	s.WriteString("\n")
	s.WriteString(subtitleStyle.Render("Fleet Control for LuxOS Miners"))
	s.WriteString("\n\n")

	targetLine := fmt.Sprintf("🎯 %s  %s",
		infoText.Bold(true).Render(m.cmd),
		subtext.Render(fmt.Sprintf("│ %d devices │ running %s", m.total, fmtDuration(time.Since(m.start)))),
	)
	s.WriteString(targetLine)
	s.WriteString("\n\n")

	done := m.report.OkCount + m.report.TimeoutCount + m.report.ErrCount
	ratio := 0.0
	if m.total > 0 {
		ratio = float64(done) / float64(m.total)
	}
	s.WriteString("  " + m.progress.ViewAs(ratio))
	s.WriteString(fmt.Sprintf("  %d/%d\n\n", done, m.total))

	counts := lipgloss.JoinHorizontal(lipgloss.Top,
		successText.Render(fmt.Sprintf("✔ ok %d", m.report.OkCount)),
		subtext.Render("   "),
		warnText.Render(fmt.Sprintf("⧗ timeout %d", m.report.TimeoutCount)),
		subtext.Render("   "),
		errText.Render(fmt.Sprintf("✘ error %d", m.report.ErrCount)),
	)
	s.WriteString("  " + counts + "\n")

	if len(m.perBatch) > 0 {
		s.WriteString("\n  " + subtext.Render("batches ") + infoText.Render(renderSparkline(m.perBatch)) + "\n")
	}

	if len(m.lastErrs) > 0 {
		s.WriteString("\n  " + errText.Bold(true).Render("Recent failures") + "\n")
		for _, e := range m.lastErrs {
			if len(e) > 76 {
				e = e[:73] + "..."
			}
			s.WriteString("  " + subtext.Render(e) + "\n")
		}
	}

	s.WriteString("\n" + subtext.Render("Press q or Ctrl+C to cancel the run."))
	return s.String()
}
