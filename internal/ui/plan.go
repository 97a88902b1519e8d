package ui

import (
	"context"
	"fmt"
	"strings"

	"fitness-planner/internal/generation"
	"fitness-planner/internal/planservice"
	"fitness-planner/internal/render"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
)

// stateChangedMsg tells the model the orchestrator published a new state.
type stateChangedMsg struct{}

// HistorySource lists the cached history of one kind.
type HistorySource interface {
	List() []planservice.HistoryEntry
}

type keyMap struct {
	Regenerate key.Binding
	History    key.Binding
	Quit       key.Binding
	Up         key.Binding
	Down       key.Binding
	Help       key.Binding
}

var keys = keyMap{
	Regenerate: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "regenerate")),
	History:    key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
	Quit:       key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "scroll up")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "scroll down")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Regenerate, k.History, k.Quit, k.Help}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Regenerate, k.History},
		{k.Quit, k.Help},
	}
}

// PlanModel shows the state of one orchestrator and lets the user regenerate.
type PlanModel struct {
	orch    *generation.Orchestrator
	form    planservice.Form
	history HistorySource

	changed     chan struct{}
	unsubscribe func()

	state       generation.State
	showHistory bool

	spinner  spinner.Model
	viewport viewport.Model
	help     help.Model
	keys     keyMap
	ready    bool
	width    int
}

// NewPlanModel binds a model to orch. history may be nil for kinds without one.
func NewPlanModel(orch *generation.Orchestrator, form planservice.Form, history HistorySource) *PlanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(brandPrimary)

	m := &PlanModel{
		orch:    orch,
		form:    form,
		history: history,
		changed: make(chan struct{}, 1),
		state:   orch.Current(),
		spinner: s,
		help:    help.New(),
		keys:    keys,
	}
	m.unsubscribe = orch.Subscribe(func(generation.State) {
		select {
		case m.changed <- struct{}{}:
		default:
		}
	})
	return m
}

// State returns the last state the model has seen.
func (m *PlanModel) State() generation.State {
	return m.state
}

func (m *PlanModel) waitForState() tea.Cmd {
	return func() tea.Msg {
		<-m.changed
		return stateChangedMsg{}
	}
}

// Init starts a generation when nothing has been requested yet.
func (m *PlanModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.waitForState()}
	if m.state.Status == generation.StatusIdle {
		m.submit()
	}
	return tea.Batch(cmds...)
}

func (m *PlanModel) submit() {
	m.orch.Submit(context.Background(), m.form)
	m.state = m.orch.Current()
	m.showHistory = false
	m.refreshContent()
}

func (m *PlanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case stateChangedMsg:
		m.state = m.orch.Current()
		m.refreshContent()
		return m, m.waitForState()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		height := msg.Height - 6
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refreshContent()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.unsubscribe()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Regenerate):
			if m.state.Loading() {
				return m, nil
			}
			m.submit()
			return m, m.spinner.Tick
		case key.Matches(msg, m.keys.History):
			if m.history == nil {
				return m, nil
			}
			m.showHistory = !m.showHistory
			m.refreshContent()
			m.viewport.GotoTop()
			return m, nil
		}
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// content returns the markdown shown in the viewport.
func (m *PlanModel) content() string {
	if m.showHistory && m.history != nil {
		return render.History(m.orch.Kind(), m.history.List(), render.CommonMark)
	}
	return render.Plan(m.state.Result, render.CommonMark)
}

func (m *PlanModel) refreshContent() {
	if !m.ready {
		return
	}

	md := m.content()
	if md == "" {
		m.viewport.SetContent("")
		return
	}

	out, err := render.Terminal(md, m.width-4)
	if err != nil {
		log.WithError(err).Warn("failed to render plan, showing raw markdown")
		out = md
	}
	m.viewport.SetContent(out)
}

func (m *PlanModel) View() string {
	var s strings.Builder

	title := fmt.Sprintf("%s plan", capitalize(string(m.orch.Kind())))
	if m.showHistory {
		title = fmt.Sprintf("%s history", capitalize(string(m.orch.Kind())))
	}
	s.WriteString(titleStyle.Render(title) + "\n")

	switch m.state.Status {
	case generation.StatusLoading:
		s.WriteString(m.spinner.View() + " Generating your plan...\n")
	case generation.StatusError:
		s.WriteString(errorStyle.Render(m.state.ErrorMessage) + "\n")
	case generation.StatusSuccess:
		s.WriteString(dimStyle.Render("Updated "+m.state.UpdatedAt.Format("15:04:05")) + "\n")
	}

	if m.ready {
		s.WriteString(m.viewport.View() + "\n")
	} else if md := m.content(); md != "" {
		s.WriteString(md + "\n")
	}

	s.WriteString(m.help.View(m.keys))
	return s.String()
}
