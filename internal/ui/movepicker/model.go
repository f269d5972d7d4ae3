// Package movepicker is the form for moving a task to any status.
package movepicker

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/theme"
)

// MoveChosenMsg is dispatched when the user picks a status.
type MoveChosenMsg struct {
	TaskID string
	Status model.TaskStatus
}

// MoveCancelMsg is dispatched when the user aborts the picker.
type MoveCancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	status model.TaskStatus
}

// Model is the Bubble Tea model for the move picker.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	task   model.Task
	width  int
	height int
}

// New creates a move picker model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Open starts the picker for task, preselecting its current status.
func (m *Model) Open(task model.Task) tea.Cmd {
	m.task = task
	m.fb.status = task.Status
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the picker.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		chosen := MoveChosenMsg{TaskID: m.task.ID, Status: m.fb.status}
		m.form = nil
		return m, func() tea.Msg { return chosen }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return MoveCancelMsg{} }
	}

	return m, cmd
}

// View renders the picker.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Move: "+m.task.Title) + "\n" + m.form.View()

	return theme.PanelStyle.Render(content)
}

// SetSize updates the picker dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	opts := make([]huh.Option[model.TaskStatus], len(model.Statuses))
	for i, s := range model.Statuses {
		opts[i] = huh.NewOption(s.Label(), s)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[model.TaskStatus]().
				Title("Status").
				Options(opts...).
				Value(&m.fb.status),
		),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

func (m Model) formWidth() int {
	w := m.width - 8
	if w < 30 {
		w = 30
	}
	if w > 60 {
		w = 60
	}
	return w
}
