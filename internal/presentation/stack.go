// Package presentation manages the ordered stack of on-screen pop-ups.
package presentation

import (
	"errors"
	"sync"
	"time"

	"github.com/nhle/taskpulse/internal/model"
)

var (
	// ErrNoReadState is returned when marking a reminder read.
	ErrNoReadState = errors.New("reminders have no read state")
	// ErrNotActive is returned for an id that is not on screen.
	ErrNotActive = errors.New("pop-up is not active")
)

// Defaults for Options.
const (
	DefaultDuration   = 6 * time.Second
	DefaultOffsetRows = 5
)

// RemoveFunc is called once for every entry that leaves the stack.
type RemoveFunc func(n model.Notification, reason model.RemoveReason)

// Options configures a Stack.
type Options struct {
	Duration   time.Duration
	OffsetRows int
	OnRemove   RemoveFunc
}

// Entry is one on-screen pop-up.
type Entry struct {
	Notification model.Notification
	PushedAt     time.Time
	ExpiresAt    time.Time
}

// Placement positions an entry: Offset rows from the anchor, stacked at Z.
type Placement struct {
	ID     string
	Offset int
	Z      int
}

// Stack keeps active pop-ups oldest first.
type Stack struct {
	mu      sync.Mutex
	entries []Entry
	opts    Options
}

// NewStack creates an empty Stack.
func NewStack(opts Options) *Stack {
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.OffsetRows <= 0 {
		opts.OffsetRows = DefaultOffsetRows
	}
	return &Stack{opts: opts}
}

// Push appends n. It returns false if n is already on the stack.
func (s *Stack) Push(n model.Notification, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(n.ID) >= 0 {
		return false
	}
	s.entries = append(s.entries, Entry{
		Notification: n,
		PushedAt:     now,
		ExpiresAt:    now.Add(s.opts.Duration),
	})
	return true
}

// Expire removes every entry whose display time has elapsed.
func (s *Stack) Expire(now time.Time) []model.Notification {
	return s.removeWhere(func(e Entry) bool {
		return !now.Before(e.ExpiresAt)
	}, model.ReasonExpired)
}

// MarkRead removes a server notification the user read.
func (s *Stack) MarkRead(id string) (model.Notification, error) {
	if (model.Notification{ID: id}).IsReminder() {
		return model.Notification{}, ErrNoReadState
	}
	return s.remove(id, model.ReasonRead)
}

// Close removes an entry the user dismissed.
func (s *Stack) Close(id string) (model.Notification, error) {
	return s.remove(id, model.ReasonClosed)
}

// Remove takes id off the stack for reason. It reports whether it was there.
func (s *Stack) Remove(id string, reason model.RemoveReason) bool {
	_, err := s.remove(id, reason)
	return err == nil
}

// RemoveServerOrigin removes every non-reminder entry.
func (s *Stack) RemoveServerOrigin(reason model.RemoveReason) []model.Notification {
	return s.removeWhere(func(e Entry) bool {
		return !e.Notification.IsReminder()
	}, reason)
}

// Refresh folds a newer copy of an on-screen notification into its entry.
// It reports whether the entry was found.
func (s *Stack) Refresh(n model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(n.ID)
	if i < 0 {
		return false
	}
	s.entries[i].Notification.Merge(n)
	return true
}

// Active returns a snapshot of the stack, oldest first.
func (s *Stack) Active() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries on screen.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Layout places the entries. Entry i sits i*OffsetRows from the anchor and
// the most recent entry is drawn on top.
func (s *Stack) Layout() []Placement {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Placement, len(s.entries))
	for i, e := range s.entries {
		out[i] = Placement{
			ID:     e.Notification.ID,
			Offset: i * s.opts.OffsetRows,
			Z:      i + 1,
		}
	}
	return out
}

func (s *Stack) indexLocked(id string) int {
	for i, e := range s.entries {
		if e.Notification.ID == id {
			return i
		}
	}
	return -1
}

func (s *Stack) remove(id string, reason model.RemoveReason) (model.Notification, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return model.Notification{}, ErrNotActive
	}
	n := s.entries[i].Notification
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.mu.Unlock()

	s.notify(n, reason)
	return n, nil
}

func (s *Stack) removeWhere(match func(Entry) bool, reason model.RemoveReason) []model.Notification {
	s.mu.Lock()
	var removed []model.Notification
	kept := s.entries[:0]
	for _, e := range s.entries {
		if match(e) {
			removed = append(removed, e.Notification)
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	s.mu.Unlock()

	for _, n := range removed {
		s.notify(n, reason)
	}
	return removed
}

// notify runs outside the lock; an entry is removed from the slice exactly
// once, so the hook fires exactly once per entry.
func (s *Stack) notify(n model.Notification, reason model.RemoveReason) {
	if s.opts.OnRemove != nil {
		s.opts.OnRemove(n, reason)
	}
}
