// Package board renders the task board and turns key presses into
// transition requests.
package board

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskpulse/internal/keys"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/theme"
)

// StartTaskMsg asks for the selected task to be started.
type StartTaskMsg struct {
	TaskID string
}

// CompleteTaskMsg asks for the selected task to be completed.
type CompleteTaskMsg struct {
	TaskID string
}

// MoveTaskMsg asks for the move picker on the selected task.
type MoveTaskMsg struct {
	Task model.Task
}

// Model is the task board view.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates a board model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Tasks"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetTasks replaces the rows, keeping the cursor on the same task when it
// is still present.
func (m *Model) SetTasks(tasks []model.Task) tea.Cmd {
	selected, hadSelection := m.SelectedTask()

	items := make([]list.Item, len(tasks))
	cursor := 0
	for i, t := range tasks {
		items[i] = TaskItem{Task: t}
		if hadSelection && t.ID == selected.ID {
			cursor = i
		}
	}
	cmd := m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(cursor)
	}
	return cmd
}

// SelectedTask returns the task under the cursor.
func (m Model) SelectedTask() (model.Task, bool) {
	item, ok := m.list.SelectedItem().(TaskItem)
	if !ok {
		return model.Task{}, false
	}
	return item.Task, true
}

// Update handles key presses for the board.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		task, selected := m.SelectedTask()
		switch {
		case key.Matches(msg, m.keys.Start):
			if !selected {
				return m, nil
			}
			return m, func() tea.Msg { return StartTaskMsg{TaskID: task.ID} }

		case key.Matches(msg, m.keys.Complete):
			if !selected {
				return m, nil
			}
			return m, func() tea.Msg { return CompleteTaskMsg{TaskID: task.ID} }

		case key.Matches(msg, m.keys.Move):
			if !selected {
				return m, nil
			}
			return m, func() tea.Msg { return MoveTaskMsg{Task: task} }
		}
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the board.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No tasks yet.\n\nPress r to refresh.")
	}
	return m.list.View()
}

// SetSize updates the board dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
