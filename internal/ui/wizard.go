package ui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fitness-planner/internal/profile"
	"fitness-planner/internal/wizard"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// onboardedMsg is sent once the wizard signals completion.
type onboardedMsg struct{}

// WizardModel is the terminal front end of the onboarding wizard.
type WizardModel struct {
	ctrl      *wizard.Controller
	completed chan struct{}

	name    textinput.Model
	height  textinput.Model
	weight  textinput.Model
	cuisine textinput.Model
	spinner spinner.Model

	cursor   int
	bodyEdit int
	err      string
	done     bool
	aborted  bool
}

// NewWizardModel creates the wizard model. The controller is created here so
// its completion signal can be turned into a bubbletea message.
func NewWizardModel(store wizard.Store, delay time.Duration) *WizardModel {
	completed := make(chan struct{})
	ctrl := wizard.New(store,
		wizard.WithDelay(delay),
		wizard.OnComplete(func() { close(completed) }),
	)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(brandPrimary)

	m := &WizardModel{
		ctrl:      ctrl,
		completed: completed,
		name:      newInput("Your name"),
		height:    newInput("Height in cm"),
		weight:    newInput("Weight in kg"),
		cuisine:   newInput("Cuisine"),
		spinner:   s,
	}
	m.load()
	return m
}

func newInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 64
	ti.Width = 32
	return ti
}

// Completed reports whether onboarding finished, as opposed to being aborted.
func (m *WizardModel) Completed() bool {
	return m.done && !m.aborted
}

// Controller exposes the underlying wizard.
func (m *WizardModel) Controller() *wizard.Controller {
	return m.ctrl
}

// load copies the controller's draft into the widgets of the current step.
func (m *WizardModel) load() {
	d := m.ctrl.Draft()
	m.err = ""
	m.cursor = 0

	m.name.Blur()
	m.height.Blur()
	m.weight.Blur()
	m.cuisine.Blur()

	switch m.ctrl.Step() {
	case wizard.StepName:
		m.name.SetValue(d.Name)
		m.name.Focus()
	case wizard.StepGoal:
		for i, g := range profile.Goals {
			if g == d.Goal {
				m.cursor = i
			}
		}
	case wizard.StepBody:
		m.height.SetValue(formatMetric(d.HeightCm))
		m.weight.SetValue(formatMetric(d.WeightKg))
		m.bodyEdit = 0
		m.height.Focus()
	case wizard.StepCuisine:
		m.cuisine.SetValue(d.Cuisine)
		m.cuisine.Focus()
	}
}

func formatMetric(f float64) string {
	if f <= 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (m *WizardModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForCompletion())
}

func (m *WizardModel) waitForCompletion() tea.Cmd {
	return func() tea.Msg {
		<-m.completed
		return onboardedMsg{}
	}
}

func (m *WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case onboardedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.ctrl.Stop()
			m.aborted = true
			m.done = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.advance()
		}
		return m, m.handleStepKey(msg)
	}

	return m, m.updateInputs(msg)
}

func (m *WizardModel) handleStepKey(msg tea.KeyMsg) tea.Cmd {
	switch m.ctrl.Step() {
	case wizard.StepGoal:
		m.moveCursor(msg, len(profile.Goals))
		m.ctrl.SetGoal(profile.Goals[m.cursor])
		return nil

	case wizard.StepEquipment:
		m.moveCursor(msg, len(profile.EquipmentOptions))
		if msg.Type == tea.KeySpace || msg.String() == "x" {
			m.ctrl.ToggleEquipment(profile.EquipmentOptions[m.cursor])
		}
		return nil

	case wizard.StepBody:
		if msg.Type == tea.KeyTab || msg.Type == tea.KeyShiftTab || msg.Type == tea.KeyUp || msg.Type == tea.KeyDown {
			m.bodyEdit = 1 - m.bodyEdit
			if m.bodyEdit == 0 {
				m.weight.Blur()
				return m.height.Focus()
			}
			m.height.Blur()
			return m.weight.Focus()
		}

	case wizard.StepCuisine:
		if msg.Type == tea.KeyUp || msg.Type == tea.KeyDown {
			m.moveCursor(msg, len(profile.Cuisines))
			m.cuisine.SetValue(profile.Cuisines[m.cursor])
			m.cuisine.CursorEnd()
			return nil
		}
	}
	return m.updateInputs(msg)
}

func (m *WizardModel) moveCursor(msg tea.KeyMsg, n int) {
	switch msg.String() {
	case "up", "k":
		m.cursor = (m.cursor - 1 + n) % n
	case "down", "j":
		m.cursor = (m.cursor + 1) % n
	}
}

func (m *WizardModel) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.ctrl.Step() {
	case wizard.StepName:
		m.name, cmd = m.name.Update(msg)
		m.ctrl.SetName(m.name.Value())
	case wizard.StepBody:
		var cmds [2]tea.Cmd
		m.height, cmds[0] = m.height.Update(msg)
		m.weight, cmds[1] = m.weight.Update(msg)
		m.ctrl.SetBody(parseMetric(m.height.Value()), parseMetric(m.weight.Value()))
		cmd = tea.Batch(cmds[0], cmds[1])
	case wizard.StepCuisine:
		m.cuisine, cmd = m.cuisine.Update(msg)
		m.ctrl.SetCuisine(m.cuisine.Value())
	}
	return cmd
}

func parseMetric(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func (m *WizardModel) advance() tea.Cmd {
	if m.ctrl.Step() == wizard.StepGoal {
		m.ctrl.SetGoal(profile.Goals[m.cursor])
	}

	if err := m.ctrl.Advance(context.Background()); err != nil {
		var verr *wizard.ValidationError
		if errors.As(err, &verr) {
			m.err = capitalize(verr.Message)
		} else {
			m.err = err.Error()
		}
		return nil
	}

	m.load()
	if m.ctrl.Step() == wizard.StepDone {
		return m.spinner.Tick
	}
	return textinput.Blink
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (m *WizardModel) View() string {
	var s strings.Builder
	step := m.ctrl.Step()

	s.WriteString(titleStyle.Render("Let's set up your fitness profile"))
	s.WriteString("\n")
	if step < wizard.StepDone {
		s.WriteString(dimStyle.Render(fmt.Sprintf("Step %d of %d", int(step)+1, int(wizard.StepDone))))
		s.WriteString("\n\n")
	}

	switch step {
	case wizard.StepName:
		s.WriteString(promptStyle.Render("What's your name?") + "\n\n")
		s.WriteString(m.name.View())
	case wizard.StepGoal:
		s.WriteString(promptStyle.Render("What's your goal?") + "\n\n")
		for i, g := range profile.Goals {
			s.WriteString(choice(i == m.cursor, string(g)) + "\n")
		}
	case wizard.StepBody:
		s.WriteString(promptStyle.Render("Your body metrics") + "\n\n")
		s.WriteString("Height (cm) " + m.height.View() + "\n")
		s.WriteString("Weight (kg) " + m.weight.View())
	case wizard.StepEquipment:
		s.WriteString(promptStyle.Render("What equipment do you have?") + "\n\n")
		selected := make(map[string]bool)
		for _, e := range m.ctrl.Draft().Equipment {
			selected[e] = true
		}
		for i, opt := range profile.EquipmentOptions {
			mark := "[ ]"
			if selected[opt] || (opt == profile.NoEquipment && len(selected) == 0) {
				mark = "[x]"
			}
			s.WriteString(choice(i == m.cursor, mark+" "+opt) + "\n")
		}
	case wizard.StepCuisine:
		s.WriteString(promptStyle.Render("Which cuisine do you prefer?") + "\n\n")
		s.WriteString(m.cuisine.View() + "\n")
		s.WriteString(dimStyle.Render("Suggestions: " + strings.Join(profile.Cuisines, ", ")))
	case wizard.StepDone:
		s.WriteString(boxStyle.Render(m.spinner.View() + " Preparing your personalized plan..."))
	}

	if m.err != "" {
		s.WriteString("\n\n" + errorStyle.Render(m.err))
	}
	if step < wizard.StepDone {
		s.WriteString("\n\n" + dimStyle.Render(helpFor(step)))
	}
	return s.String() + "\n"
}

func choice(active bool, label string) string {
	if active {
		return selectedStyle.Render("> " + label)
	}
	return "  " + label
}

func helpFor(step wizard.Step) string {
	switch step {
	case wizard.StepGoal:
		return "↑/↓ choose • enter continue • esc quit"
	case wizard.StepBody:
		return "tab switch field • enter continue • esc quit"
	case wizard.StepEquipment:
		return "↑/↓ move • space toggle • enter continue • esc quit"
	case wizard.StepCuisine:
		return "↑/↓ suggestions • enter finish • esc quit"
	default:
		return "enter continue • esc quit"
	}
}
