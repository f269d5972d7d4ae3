package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of notification categories the backend issues.
type Kind string

const (
	KindUpdate            Kind = "update"
	KindTask              Kind = "task"
	KindEarning           Kind = "earning"
	KindWalletTransaction Kind = "wallet_transaction"
)

// ErrUnknownKind is returned by ParseKind for values outside the closed set.
var ErrUnknownKind = errors.New("unknown notification kind")

// ParseKind normalizes a wire value into a Kind.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindUpdate, KindTask, KindEarning, KindWalletTransaction:
		return k, nil
	case "wallet-transaction", "wallet":
		return KindWalletTransaction, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// ReminderIDPrefix prefixes the synthetic ids given to task reminders.
const ReminderIDPrefix = "task-reminder-"

// ReminderID returns the synthetic notification id for a task reminder.
func ReminderID(taskID string) string {
	return ReminderIDPrefix + taskID
}

// Notification represents a pop-up surfaced to the user, either issued by
// the backend or synthesized locally for an approaching task deadline.
type Notification struct {
	// ID is the server-issued id, or ReminderID(taskID) for reminders.
	ID string `json:"id"`

	// Kind is the notification category.
	Kind Kind `json:"kind"`

	// Title is the short heading shown on the pop-up.
	Title string `json:"title"`

	// Message is the human-readable body.
	Message string `json:"message"`

	// Metadata holds free-form attributes attached by the backend.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the backend (or the reminder policy) created it.
	CreatedAt time.Time `json:"created_at"`

	// Read indicates whether the user has read this notification.
	Read bool `json:"is_read"`

	// ReadAt is when it was first read.
	ReadAt *time.Time `json:"read_at,omitempty"`

	// PoppedAt is when it was first displayed by any session.
	PoppedAt *time.Time `json:"popped_at,omitempty"`
}

// IsReminder reports whether n was synthesized from a task deadline.
func (n Notification) IsReminder() bool {
	return strings.HasPrefix(n.ID, ReminderIDPrefix)
}

// Popped reports whether any session has displayed n.
func (n Notification) Popped() bool {
	return n.PoppedAt != nil
}

// MarkRead sets the read flag. Calling it again keeps the first timestamp.
func (n *Notification) MarkRead(at time.Time) {
	n.Read = true
	if n.ReadAt == nil {
		t := at
		n.ReadAt = &t
	}
}

// MarkPopped records the first display time.
func (n *Notification) MarkPopped(at time.Time) {
	if n.PoppedAt == nil {
		t := at
		n.PoppedAt = &t
	}
}

// Merge folds a newer copy of the same notification into n. Read and popped
// only move forward: a stale copy never clears them.
func (n *Notification) Merge(other Notification) {
	if other.ID != n.ID {
		return
	}
	if other.Title != "" {
		n.Title = other.Title
	}
	if other.Message != "" {
		n.Message = other.Message
	}
	if other.Metadata != nil {
		n.Metadata = other.Metadata
	}
	if other.Read {
		at := time.Now()
		if other.ReadAt != nil {
			at = *other.ReadAt
		}
		n.MarkRead(at)
	}
	if other.PoppedAt != nil {
		n.MarkPopped(*other.PoppedAt)
	}
}

// RemoveReason says why a pop-up left the screen.
type RemoveReason string

const (
	// ReasonExpired: the display duration elapsed.
	ReasonExpired RemoveReason = "expired"
	// ReasonClosed: the user closed it.
	ReasonClosed RemoveReason = "closed"
	// ReasonRead: the user marked it read.
	ReasonRead RemoveReason = "read"
	// ReasonRemote: another session read or popped it.
	ReasonRemote RemoveReason = "remote"
)

// Metadata keys set on reminder notifications.
const (
	MetaTaskID   = "task_id"
	MetaDeadline = "deadline"
	MetaUrgent   = "urgent"
)

// ReminderDeadline returns the task deadline a reminder was raised for.
func (n Notification) ReminderDeadline() *time.Time {
	raw, ok := n.Metadata[MetaDeadline].(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}
