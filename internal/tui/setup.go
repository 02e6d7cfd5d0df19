package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/luxops/luxfleet/internal/rexec"
	"github.com/luxops/luxfleet/pkg/config"
)

type Step int

const (
	StepCommand Step = iota
	StepParams
	StepRange
	StepBatch
	StepTimeout
	StepSaveConfig
	StepDone
)

type setupDoneMsg struct{ aborted bool }

type stepResult struct {
	label string
	value string
}

// SetupModel walks the operator through building a broadcast when the CLI
// was started without --cmd.
type SetupModel struct {
	config  *config.Config
	current Step
	history []stepResult
	form    *huh.Form // Active form for the current step

	// temporary fields for form binding
	tempCmd     string
	tempParams  string
	tempRange   string
	tempBatch   string
	tempTimeout string

	saveConfig bool
}

func NewSetupModel(cfg *config.Config) *SetupModel {
	m := &SetupModel{
		config:      cfg,
		current:     StepCommand,
		history:     make([]stepResult, 0),
		tempCmd:     cfg.Cmd,
		tempRange:   strings.Join(cfg.Ranges, ","),
		tempBatch:   "100",
		tempTimeout: "3s",
	}
	m.nextForm()
	return m
}

func (m *SetupModel) nextForm() {
	neon := MakeNeonTheme()

	switch m.current {
	case StepCommand:
		options := make([]huh.Option[string], 0, len(rexec.CommandNames()))
		for _, name := range rexec.CommandNames() {
			label := name
			if entry, ok := rexec.Lookup(name); ok {
				label = fmt.Sprintf("%-16s %s", name, entry.Description)
			}
			options = append(options, huh.NewOption(label, name))
		}
		m.form = huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which command should the fleet run?").
				Description("Session-requiring commands are wrapped in logon/logoff automatically.").
				Options(options...).
				Value(&m.tempCmd),
		)).WithTheme(neon)

	case StepParams:
		m.form = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Parameters").
				Description("Comma separated. All positional, or all k=v — never mixed. {{host}}, {{uuid}}, ... expand per device. Empty for none.").
				Value(&m.tempParams),
		)).WithTheme(neon)

	case StepRange:
		m.form = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Which devices?").
				Description("Address expression: 10.0.0.1, 10.0.0.1:4028, 10.0.0.1-10.0.0.9, or @file.csv").
				Placeholder("127.0.0.1-127.0.0.10").
				Value(&m.tempRange).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("need at least one device")
					}
					return nil
				}),
		)).WithTheme(neon)

	case StepBatch:
		m.form = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Batch size").
				Description("Devices contacted concurrently per batch. 0 runs everything at once.").
				Value(&m.tempBatch).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 0 {
						return fmt.Errorf("enter 0 or a positive integer")
					}
					return nil
				}),
		)).WithTheme(neon)

	case StepTimeout:
		m.form = huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Per-command timeout").
				Description("Each wire attempt gets this budget (e.g. 3s, 500ms).").
				Value(&m.tempTimeout).
				Validate(func(s string) error {
					d, err := time.ParseDuration(strings.TrimSpace(s))
					if err != nil || d <= 0 {
						return fmt.Errorf("enter a duration like 3s")
					}
					return nil
				}),
		)).WithTheme(neon)

	case StepSaveConfig:
		m.form = huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Save this setup to luxfleet.yaml?").
				Description("Replay it later with: luxfleet -c luxfleet.yaml").
				Value(&m.saveConfig),
		)).WithTheme(neon)
	}
}

func (m *SetupModel) Init() tea.Cmd {
	if m.form != nil {
		return m.form.Init()
	}
	return nil
}

func (m *SetupModel) Update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		return func() tea.Msg { return setupDoneMsg{aborted: true} }
	}
	if m.form == nil {
		return nil
	}

	model, cmd := m.form.Update(msg)
	if f, ok := model.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.commitStep()
		if m.current == StepDone {
			return func() tea.Msg { return setupDoneMsg{} }
		}
		m.nextForm()
		return m.form.Init()
	}
	return cmd
}

// commitStep folds the completed form values into the config and records
// the answer for the history sidebar.
func (m *SetupModel) commitStep() {
	switch m.current {
	case StepCommand:
		m.config.Cmd = m.tempCmd
		m.history = append(m.history, stepResult{"Command", m.tempCmd})
	case StepParams:
		params := splitParams(m.tempParams)
		m.config.Params = params
		if len(params) > 0 {
			m.history = append(m.history, stepResult{"Params", strings.Join(params, ",")})
		} else {
			m.history = append(m.history, stepResult{"Params", "(none)"})
		}
	case StepRange:
		m.config.Ranges = []string{strings.TrimSpace(m.tempRange)}
		m.history = append(m.history, stepResult{"Devices", m.tempRange})
	case StepBatch:
		m.config.Batch, _ = strconv.Atoi(strings.TrimSpace(m.tempBatch))
		m.history = append(m.history, stepResult{"Batch", m.tempBatch})
	case StepTimeout:
		m.config.Timeout, _ = time.ParseDuration(strings.TrimSpace(m.tempTimeout))
		m.history = append(m.history, stepResult{"Timeout", m.tempTimeout})
	case StepSaveConfig:
		if m.saveConfig {
			if err := config.SaveConfig("luxfleet.yaml", m.config); err == nil {
				m.history = append(m.history, stepResult{"Saved", "luxfleet.yaml"})
			}
		}
	}
	m.current++
}

func splitParams(txt string) []string {
	var out []string
	for _, p := range strings.Split(txt, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (m *SetupModel) View() string {
	var s strings.Builder

	logo := logoStyle.Render(asciiLogo)
	s.WriteString(borderStyle.Render(logo))
	s.WriteString("\n")
	s.WriteString(subtitleStyle.Render("Fleet Control for LuxOS Miners"))
	s.WriteString("\n\n")

	for _, h := range m.history {
		s.WriteString(fmt.Sprintf("  %s %s\n",
			subtext.Render(fmt.Sprintf("%-9s", h.label+":")),
			highlight.Render(h.value)))
	}
	if len(m.history) > 0 {
		s.WriteString("\n")
	}

	if m.form != nil {
		s.WriteString(m.form.View())
	}
	s.WriteString("\n" + subtext.Render("Esc to abort."))
	return s.String()
}
