package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/luxops/luxfleet/pkg/models"
)

// SummaryModel renders the end-of-run view shown after the dashboard.
type SummaryModel struct {
	report   models.Report
	outcomes []models.Outcome
}

func NewSummaryModel(report models.Report, outcomes []models.Outcome) *SummaryModel {
	return &SummaryModel{
		report:   report,
		outcomes: outcomes,
	}
}

func (m *SummaryModel) View() string {
	var s strings.Builder

	logo := logoStyle.Render(asciiLogo)
	s.WriteString(borderStyle.Render(logo))
	s.WriteString("\n")
	s.WriteString(subtitleStyle.Render("Fleet Control for LuxOS Miners"))
	s.WriteString("\n\n")

	s.WriteString(sumHeaderStyle.Render("📊 Run Summary"))
	s.WriteString("\n\n")

	tData := [][]string{
		{"Command", m.report.Command},
		{"Devices", fmt.Sprintf("%d", m.report.Total)},
		{"Succeeded", fmt.Sprintf("%d", m.report.OkCount)},
		{"Timed out", fmt.Sprintf("%d", m.report.TimeoutCount)},
		{"Failed", fmt.Sprintf("%d", m.report.ErrCount)},
		{"Success Rate", fmt.Sprintf("%.1f%%", m.report.SuccessRate)},
		{"Duration", fmtDuration(m.report.Duration)},
	}
	for _, row := range tData {
		s.WriteString(fmt.Sprintf("  %s %s\n",
			sumStatStyle.Render(fmt.Sprintf("%-14s", row[0]+":")),
			sumValueStyle.Render(row[1])))
	}
	s.WriteString("\n")

	if m.report.OkCount > 0 {
		s.WriteString(highlight.Bold(true).Render("Latency Distribution:"))
		s.WriteString("\n")
		lData := [][]string{
			{"Min", fmtDuration(m.report.Min)},
			{"P50", fmtDuration(m.report.P50)},
			{"P90", fmtDuration(m.report.P90)},
			{"P95", fmtDuration(m.report.P95)},
			{"P99", fmtDuration(m.report.P99)},
			{"Max", fmtDuration(m.report.Max)},
		}
		// 2 columns layout for latency
		for i := 0; i < len(lData); i += 2 {
			r1 := lData[i]
			s.WriteString(fmt.Sprintf("  %s %s",
				sumStatStyle.Render(fmt.Sprintf("%-5s", r1[0]+":")),
				sumValueStyle.Render(fmt.Sprintf("%-12s", r1[1]))))
			if i+1 < len(lData) {
				r2 := lData[i+1]
				s.WriteString(fmt.Sprintf("  %s %s",
					sumStatStyle.Render(fmt.Sprintf("%-5s", r2[0]+":")),
					sumValueStyle.Render(r2[1])))
			}
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	if len(m.report.Errors) > 0 {
		s.WriteString(errText.Bold(true).Render("❌ Error Breakdown"))
		s.WriteString("\n")
		var msgs []string
		for msg := range m.report.Errors {
			msgs = append(msgs, msg)
		}
		sort.Slice(msgs, func(i, j int) bool {
			return m.report.Errors[msgs[i]] > m.report.Errors[msgs[j]]
		})
		for _, msg := range msgs {
			clean := msg
			if len(clean) > 50 {
				clean = clean[:47] + "..."
			}
			s.WriteString(fmt.Sprintf("  %s %s\n",
				sumStatStyle.Render(fmt.Sprintf("%-50s", clean+":")),
				sumValueStyle.Render(fmt.Sprintf("%d", m.report.Errors[msg]))))
		}
		s.WriteString("\n")
	}

	if m.report.Aborted {
		s.WriteString(errText.Render("⚠ " + m.report.AbortReason))
		s.WriteString("\n\n")
	}

	s.WriteString(subtext.Render("Press q or Ctrl+C to exit."))
	return s.String()
}
