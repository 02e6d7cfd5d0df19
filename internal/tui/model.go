package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/luxops/luxfleet/internal/fleet"
	"github.com/luxops/luxfleet/internal/stats"
	"github.com/luxops/luxfleet/pkg/config"
	"github.com/luxops/luxfleet/pkg/models"
)

type State int

const (
	StateSetup State = iota
	StateRunning
	StateSummary
)

// Resolver turns a validated config into the address list and the per-device
// routine; main owns it so the TUI stays ignorant of flag plumbing.
type Resolver func(cfg *config.Config) ([]models.Address, fleet.Call, error)

// internal messages
type startMsg struct{}
type batchDoneMsg struct{ ok int }
type failureMsg string
type runDoneMsg []models.Outcome
type eventMsg struct{ inner tea.Msg }

type MainModel struct {
	state    State
	config   *config.Config
	resolve  Resolver
	quitting bool

	cancel   context.CancelFunc
	events   chan tea.Msg
	monitor  *stats.Monitor
	outcomes []models.Outcome
	runErr   error

	// Phases
	setupModel *SetupModel
	dashModel  *DashModel
	sumModel   *SummaryModel
}

func NewModel(cfg *config.Config, resolve Resolver, startRunning bool) MainModel {
	m := MainModel{
		state:   StateSetup,
		config:  cfg,
		resolve: resolve,
	}
	if startRunning {
		m.state = StateRunning
	} else {
		m.setupModel = NewSetupModel(cfg)
	}
	return m
}

func (m MainModel) Init() tea.Cmd {
	if m.state == StateRunning {
		// Kick the run from Update so the mutated model is retained.
		return func() tea.Msg { return startMsg{} }
	}
	return m.setupModel.Init()
}

// startRun resolves the fleet and launches it in the background, feeding
// events into the dashboard as they arrive.
func (m *MainModel) startRun() tea.Cmd {
	addrs, call, err := m.resolve(m.config)
	if err != nil {
		m.runErr = err
		return tea.Quit
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.events = make(chan tea.Msg, 1024)
	m.monitor = stats.NewMonitor()
	m.dashModel = NewDashModel(m.config.Cmd, len(addrs))

	monitor := m.monitor
	events := m.events
	var prevOK int64
	opts := fleet.Options{
		Batch:      m.config.Batch,
		BatchDelay: m.config.BatchDelay,
		Rate:       m.config.Rate,
		Abort:      m.config.AbortRule(),
		OnOutcome: func(o models.Outcome) {
			monitor.Add(o)
			if !o.Ok() {
				select {
				case events <- failureMsg(o.Address.String() + ": " + o.Brief):
				default:
				}
			}
			select {
			case events <- monitor.Snapshot():
			default:
			}
		},
		Progress: func(done int) {
			monitor.BatchDone(done)
			_, okSoFar, _, _ := monitor.Counts()
			batchOK := int(okSoFar - prevOK)
			prevOK = okSoFar
			select {
			case events <- batchDoneMsg{ok: batchOK}:
			default:
			}
		},
	}

	go func() {
		outcomes := fleet.Launch(ctx, addrs, call, opts)
		events <- runDoneMsg(outcomes)
	}()

	return m.waitForEvent()
}

func (m MainModel) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return eventMsg{inner: <-events}
	}
}

func (m MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		// "q" is a regular character inside the setup forms.
		if key == "ctrl+c" || (key == "q" && m.state != StateSetup) {
			if m.state == StateRunning && m.cancel != nil {
				// First key cancels the run; the summary appears once
				// outstanding jobs unwind.
				m.cancel()
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		}

	case startMsg:
		cmd := m.startRun()
		if m.runErr != nil {
			return m, tea.Quit
		}
		return m, cmd

	case setupDoneMsg:
		if msg.aborted {
			m.quitting = true
			return m, tea.Quit
		}
		m.state = StateRunning
		return m, func() tea.Msg { return startMsg{} }

	case eventMsg:
		switch inner := msg.inner.(type) {
		case runDoneMsg:
			m.outcomes = inner
			m.sumModel = NewSummaryModel(m.Report(), m.outcomes)
			m.state = StateSummary
			return m, nil
		default:
			if m.dashModel != nil {
				m.dashModel.Update(inner)
			}
			return m, m.waitForEvent()
		}
	}

	if m.state == StateSetup && m.setupModel != nil {
		cmd := m.setupModel.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m MainModel) View() string {
	switch m.state {
	case StateSetup:
		if m.setupModel != nil {
			return m.setupModel.View()
		}
	case StateRunning:
		if m.dashModel != nil {
			return m.dashModel.View()
		}
	case StateSummary:
		if m.sumModel != nil {
			return m.sumModel.View()
		}
	}
	return ""
}

// Report returns the final run report.
func (m MainModel) Report() models.Report {
	if m.monitor == nil {
		return models.Report{}
	}
	rep := m.monitor.Snapshot()
	rep.Command = m.config.Cmd
	if reason := fleet.AbortedReason(m.outcomes); reason != "" {
		rep.Aborted = true
		rep.AbortReason = reason
	}
	return rep
}

// Outcomes returns the per-device results of the finished run.
func (m MainModel) Outcomes() []models.Outcome { return m.outcomes }

// Err reports a resolver failure that prevented the run from starting.
func (m MainModel) Err() error { return m.runErr }
