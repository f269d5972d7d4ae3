// Package admission decides which notifications may be displayed and keeps
// the local record that makes display at-most-once per client.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/store"
)

// Acker acknowledges displayed server notifications.
type Acker interface {
	MarkPopped(ctx context.Context, ids []string) error
}

// Logger is the minimal logging surface the tracker needs.
type Logger interface {
	Printf(format string, args ...any)
}

// effectTimeout bounds each background store write or acknowledgement.
const effectTimeout = 15 * time.Second

// Tracker owns the shown, active and dismissed sets. Every check-and-insert
// happens under one mutex, so two sources offering the same id concurrently
// admit it once.
type Tracker struct {
	mu         sync.Mutex
	shown      map[string]struct{}
	persisted  map[string]struct{} // durable, or write in flight
	active     map[string]model.Notification
	selfPopped map[string]struct{}
	dismissed  map[string]store.DismissedReminder

	store  store.AdmissionStore
	acker  Acker
	logger Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// NewTracker creates a Tracker. Call Load before admitting anything.
func NewTracker(s store.AdmissionStore, acker Acker, logger Logger) *Tracker {
	return &Tracker{
		shown:      make(map[string]struct{}),
		persisted:  make(map[string]struct{}),
		active:     make(map[string]model.Notification),
		selfPopped: make(map[string]struct{}),
		dismissed:  make(map[string]store.DismissedReminder),
		store:      s,
		acker:      acker,
		logger:     logger,
		now:        time.Now,
	}
}

func (t *Tracker) logf(format string, args ...any) {
	if t.logger == nil {
		return
	}
	t.logger.Printf(format, args...)
}

// Load reads the durable sets. It may be called again to pick up writes
// made by another process.
func (t *Tracker) Load(ctx context.Context) error {
	shown, err := t.store.ShownIDs(ctx)
	if err != nil {
		return fmt.Errorf("loading shown ids: %w", err)
	}
	dismissed, err := t.store.DismissedReminders(ctx)
	if err != nil {
		return fmt.Errorf("loading dismissed reminders: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range shown {
		t.shown[id] = struct{}{}
		t.persisted[id] = struct{}{}
	}
	for id, d := range dismissed {
		t.dismissed[id] = d
	}
	return nil
}

// Admit reports whether n may be displayed and, if so, marks it active. The
// shown id is persisted and server notifications are acknowledged in the
// background.
func (t *Tracker) Admit(n model.Notification) bool {
	t.mu.Lock()
	if _, ok := t.shown[n.ID]; ok {
		t.mu.Unlock()
		return false
	}
	if _, ok := t.active[n.ID]; ok {
		t.mu.Unlock()
		return false
	}
	t.active[n.ID] = n
	t.shown[n.ID] = struct{}{}
	t.persisted[n.ID] = struct{}{}
	if !n.IsReminder() {
		t.selfPopped[n.ID] = struct{}{}
	}
	t.mu.Unlock()

	t.goEffect("persistShown", func(ctx context.Context) error {
		return t.persistShown(ctx, n.ID)
	})
	if !n.IsReminder() && t.acker != nil {
		t.goEffect("ackPopped", func(ctx context.Context) error {
			return t.acker.MarkPopped(ctx, []string{n.ID})
		})
	}
	return true
}

// Retire is the single persistence step run when a pop-up leaves the
// screen. It drops n from the active set, makes sure its shown id is
// durable and, for reminders the user closed, records the dismissal.
func (t *Tracker) Retire(n model.Notification, reason model.RemoveReason) {
	t.mu.Lock()
	delete(t.active, n.ID)
	t.shown[n.ID] = struct{}{}
	_, written := t.persisted[n.ID]
	t.persisted[n.ID] = struct{}{}

	var dismissal *store.DismissedReminder
	if n.IsReminder() && reason == model.ReasonClosed {
		d := store.DismissedReminder{
			ID:          n.ID,
			Deadline:    n.ReminderDeadline(),
			DismissedAt: t.now(),
		}
		t.dismissed[n.ID] = d
		dismissal = &d
	}
	t.mu.Unlock()

	if !written {
		t.goEffect("persistShown", func(ctx context.Context) error {
			return t.persistShown(ctx, n.ID)
		})
	}
	if dismissal != nil {
		d := *dismissal
		t.goEffect("persistDismissed", func(ctx context.Context) error {
			return t.store.AddDismissed(ctx, d)
		})
	}
}

// SelfPopped reports whether this session acknowledged id.
func (t *Tracker) SelfPopped(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.selfPopped[id]
	return ok
}

// Active reports whether id is currently on screen.
func (t *Tracker) Active(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[id]
	return ok
}

// Shown reports whether id was ever admitted on this client.
func (t *Tracker) Shown(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.shown[id]
	return ok
}

// Dismissed returns the dismissal recorded for a reminder id.
func (t *Tracker) Dismissed(id string) (store.DismissedReminder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.dismissed[id]
	return d, ok
}

// DismissedIDs returns a copy of the dismissed set.
func (t *Tracker) DismissedIDs() map[string]store.DismissedReminder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]store.DismissedReminder, len(t.dismissed))
	for id, d := range t.dismissed {
		out[id] = d
	}
	return out
}

// Undismiss forgets a reminder dismissal.
func (t *Tracker) Undismiss(id string) {
	t.mu.Lock()
	_, ok := t.dismissed[id]
	delete(t.dismissed, id)
	t.mu.Unlock()

	if !ok {
		return
	}
	t.goEffect("removeDismissed", func(ctx context.Context) error {
		return t.store.RemoveDismissed(ctx, id)
	})
}

// Flush waits for every background effect dispatched so far.
func (t *Tracker) Flush() {
	t.wg.Wait()
}

// Close waits for every background effect to finish.
func (t *Tracker) Close() {
	t.Flush()
}

// persistShown writes id once. A failed write clears the mark so a later
// Retire may try again.
func (t *Tracker) persistShown(ctx context.Context, id string) error {
	if err := t.store.AddShown(ctx, id); err != nil {
		t.mu.Lock()
		delete(t.persisted, id)
		t.mu.Unlock()
		return err
	}
	return nil
}

// goEffect runs a named side effect in the background. Failures are logged
// and never retried.
func (t *Tracker) goEffect(name string, fn func(ctx context.Context) error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			t.logf("admission: %s failed: %v", name, err)
		}
	}()
}
