package model

import "time"

// MutationItem is one pending remote status update in the mutation queue.
type MutationItem struct {
	ID         string
	EntityID   string
	Status     TaskStatus
	EnqueuedAt time.Time
}
