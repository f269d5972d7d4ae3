package model

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a task on the board.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

// Statuses lists every status in board order.
var Statuses = []TaskStatus{StatusNotStarted, StatusInProgress, StatusCompleted}

// ParseTaskStatus validates a wire or user supplied status.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(raw)
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return s, nil
	}
	return "", fmt.Errorf("unknown task status %q", raw)
}

// Label returns the display name of the status.
func (s TaskStatus) Label() string {
	switch s {
	case StatusNotStarted:
		return "Not started"
	case StatusInProgress:
		return "In progress"
	case StatusCompleted:
		return "Completed"
	default:
		return string(s)
	}
}

// Next returns the natural forward transition offered by the start and
// complete controls. Completed tasks have none.
func (s TaskStatus) Next() (TaskStatus, bool) {
	switch s {
	case StatusNotStarted:
		return StatusInProgress, true
	case StatusInProgress:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// Task is a unit of work tracked on the board.
type Task struct {
	// ID is the backend identifier.
	ID string `json:"id" db:"id"`

	// Title is the human-readable summary of the task.
	Title string `json:"title" db:"title"`

	// Status is the current board bucket.
	Status TaskStatus `json:"status" db:"status"`

	// StartAt is when work on the task is scheduled to begin.
	StartAt *time.Time `json:"start_at,omitempty" db:"start_at"`

	// Deadline is when the task is due.
	Deadline *time.Time `json:"deadline,omitempty" db:"deadline"`

	// CompletedAt is set while the task is in StatusCompleted.
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ApplyStatus moves the task to status and maintains CompletedAt: entering
// completed stamps it, leaving completed clears it.
func (t *Task) ApplyStatus(status TaskStatus, now time.Time) {
	if status == StatusCompleted && t.Status != StatusCompleted {
		at := now
		t.CompletedAt = &at
	} else if status != StatusCompleted {
		t.CompletedAt = nil
	}
	t.Status = status
	t.UpdatedAt = now
}

// IsOverdue reports whether an unfinished task is past its deadline.
func (t Task) IsOverdue(now time.Time) bool {
	return t.Deadline != nil && t.Deadline.Before(now) && t.Status != StatusCompleted
}
