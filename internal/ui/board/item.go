package board

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/theme"
)

// TaskItem wraps a model.Task so it can be used in a bubbles/list.
type TaskItem struct {
	Task model.Task
}

// FilterValue returns the string used for fuzzy filtering.
func (i TaskItem) FilterValue() string { return i.Task.Title }

// Title returns the task title for the list.
func (i TaskItem) Title() string { return i.Task.Title }

// Description returns a short summary line for the list.
func (i TaskItem) Description() string {
	return i.Task.Status.Label() + " | " + dueText(i.Task, time.Now())
}

// ItemDelegate implements list.ItemDelegate for rendering board rows.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single board row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ti, ok := item.(TaskItem)
	if !ok {
		return
	}
	now := time.Now()
	if d.now != nil {
		now = d.now()
	}
	fmt.Fprint(w, renderRow(ti.Task, index == m.Index(), now))
}

func renderRow(t model.Task, selected bool, now time.Time) string {
	var prefix string
	switch t.Status {
	case model.StatusCompleted:
		prefix = "✓"
	case model.StatusInProgress:
		prefix = "◐"
	default:
		prefix = "○"
	}

	statusBadge := theme.StatusStyle(t.Status).Render(t.Status.Label())

	due := ""
	if t.Deadline != nil && t.Status != model.StatusCompleted {
		due = theme.DueDateStyle.Render("  " + dueText(t, now))
	}
	overdue := ""
	if t.IsOverdue(now) {
		overdue = theme.OverdueStyle.Render(" OVERDUE")
	}

	line := fmt.Sprintf("%s %s %s%s%s", prefix, statusBadge, t.Title, due, overdue)
	if t.Status == model.StatusCompleted {
		line = theme.DimmedStyle.Render(line)
	}

	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// dueText describes the deadline relative to now, e.g. "due in 2 hours".
func dueText(t model.Task, now time.Time) string {
	if t.Deadline == nil {
		return "no deadline"
	}
	return "due " + humanize.RelTime(*t.Deadline, now, "ago", "from now")
}
