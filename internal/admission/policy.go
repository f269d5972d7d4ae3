package admission

import (
	"time"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/reminder"
)

// DefaultReminderThreshold is how close a deadline must be before a
// non-urgent reminder is offered.
const DefaultReminderThreshold = 120 * time.Minute

// ReminderPolicy admits reminders derived from the task snapshot.
type ReminderPolicy struct {
	tracker   *Tracker
	computer  reminder.Computer
	threshold time.Duration
}

// NewReminderPolicy creates a policy feeding tracker. A zero threshold uses
// DefaultReminderThreshold.
func NewReminderPolicy(tracker *Tracker, computer reminder.Computer, threshold time.Duration) *ReminderPolicy {
	if threshold <= 0 {
		threshold = DefaultReminderThreshold
	}
	return &ReminderPolicy{
		tracker:   tracker,
		computer:  computer,
		threshold: threshold,
	}
}

// Eligible reports whether r qualifies by urgency or proximity alone.
func (p *ReminderPolicy) Eligible(r model.Reminder) bool {
	return r.IsUrgent || r.MinutesUntilDeadline <= p.threshold.Minutes()
}

// Evaluate prunes stale dismissals, computes reminders for tasks and returns
// the notifications admitted for display.
func (p *ReminderPolicy) Evaluate(tasks []model.Task, now time.Time) []model.Notification {
	p.prune(tasks)

	var admitted []model.Notification
	for _, r := range p.computer.Compute(tasks, now) {
		if !p.Eligible(r) {
			continue
		}
		id := model.ReminderID(r.Task.ID)
		if _, dismissed := p.tracker.Dismissed(id); dismissed {
			continue
		}
		if p.tracker.Active(id) {
			continue
		}
		n := reminder.Notification(r, now)
		if p.tracker.Admit(n) {
			admitted = append(admitted, n)
		}
	}
	return admitted
}

// prune drops dismissals whose task has since completed or moved its
// deadline. Tasks missing from the snapshot keep their dismissal.
func (p *ReminderPolicy) prune(tasks []model.Task) {
	byID := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		byID[model.ReminderID(t.ID)] = t
	}

	for id, d := range p.tracker.DismissedIDs() {
		t, ok := byID[id]
		if !ok {
			continue
		}
		if t.Status == model.StatusCompleted || !sameDeadline(d.Deadline, t.Deadline) {
			p.tracker.Undismiss(id)
		}
	}
}

func sameDeadline(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
