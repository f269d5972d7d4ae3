// Package reminder derives deadline reminders from a task snapshot.
package reminder

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nhle/taskpulse/internal/model"
)

// Computer turns a task snapshot into reminders. Implementations decide
// urgency; callers only rely on the returned fields.
type Computer interface {
	Compute(tasks []model.Task, now time.Time) []model.Reminder
}

// DefaultUrgentFraction is the share of a task's scheduled span below which
// the remaining time counts as urgent.
const DefaultUrgentFraction = 0.2

// DeadlineComputer reports every unfinished task that has a deadline. A task
// is urgent when it is overdue, or when less than UrgentFraction of the span
// between StartAt and Deadline remains.
type DeadlineComputer struct {
	UrgentFraction float64
}

// Compute implements Computer. Results are ordered by deadline.
func (c DeadlineComputer) Compute(tasks []model.Task, now time.Time) []model.Reminder {
	fraction := c.UrgentFraction
	if fraction <= 0 {
		fraction = DefaultUrgentFraction
	}

	var out []model.Reminder
	for _, t := range tasks {
		if t.Deadline == nil || t.Status == model.StatusCompleted {
			continue
		}
		remaining := t.Deadline.Sub(now)
		urgent := remaining < 0
		if !urgent && t.StartAt != nil {
			span := t.Deadline.Sub(*t.StartAt)
			urgent = span > 0 && float64(remaining) <= fraction*float64(span)
		}
		out = append(out, model.Reminder{
			Task:                 t,
			MinutesUntilDeadline: remaining.Minutes(),
			IsUrgent:             urgent,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinutesUntilDeadline < out[j].MinutesUntilDeadline
	})
	return out
}

// Notification builds the pop-up shown for r.
func Notification(r model.Reminder, now time.Time) model.Notification {
	title := "Deadline approaching"
	if r.MinutesUntilDeadline < 0 {
		title = "Task overdue"
	}

	msg := r.Task.Title
	meta := map[string]any{
		model.MetaTaskID: r.Task.ID,
		model.MetaUrgent: r.IsUrgent,
	}
	if r.Task.Deadline != nil {
		msg = fmt.Sprintf("%s: %s", r.Task.Title, humanize.RelTime(*r.Task.Deadline, now, "overdue", "left"))
		meta[model.MetaDeadline] = r.Task.Deadline.UTC().Format(time.RFC3339Nano)
	}

	return model.Notification{
		ID:        model.ReminderID(r.Task.ID),
		Kind:      model.KindTask,
		Title:     title,
		Message:   msg,
		Metadata:  meta,
		CreatedAt: now,
	}
}
