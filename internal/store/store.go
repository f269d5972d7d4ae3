package store

import (
	"context"
	"time"

	"github.com/nhle/taskpulse/internal/model"
)

// DismissedReminder records a reminder the user closed, together with the
// task deadline it was dismissed against.
type DismissedReminder struct {
	ID          string     `json:"id" db:"id"`
	Deadline    *time.Time `json:"deadline,omitempty" db:"deadline"`
	DismissedAt time.Time  `json:"dismissed_at" db:"dismissed_at"`
}

// AdmissionStore is the durable local record used for pop-up dedup. Shown
// ids are append-only: nothing in the delivery path removes them. Clear is
// the explicit storage-clear action reserved for the CLI.
type AdmissionStore interface {
	ShownIDs(ctx context.Context) (map[string]struct{}, error)
	AddShown(ctx context.Context, id string) error

	DismissedReminders(ctx context.Context) (map[string]DismissedReminder, error)
	AddDismissed(ctx context.Context, d DismissedReminder) error
	RemoveDismissed(ctx context.Context, id string) error

	Clear(ctx context.Context) error
	Close() error
}

// TaskCache keeps the last task snapshot so the board can render before the
// first fetch completes.
type TaskCache interface {
	ReplaceTasks(ctx context.Context, tasks []model.Task) error
	GetTasks(ctx context.Context) ([]model.Task, error)
}

// Store is a complete local backend.
type Store interface {
	AdmissionStore
	TaskCache
}
