// Package delivery merges the catch-up fetch, the push stream and the task
// snapshot pull into a single stream of typed events.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/push"
)

// EventKind tags an Event.
type EventKind int

const (
	// EventCandidate carries a notification that may be displayed.
	EventCandidate EventKind = iota
	// EventRetract carries a notification that must leave the screen.
	EventRetract
	// EventSnapshot carries a fresh task list, or the error that prevented it.
	EventSnapshot
	// EventChannelState reports whether the push stream is connected.
	EventChannelState
	// EventRefresh carries a newer copy of a row that may be on screen.
	EventRefresh
)

func (k EventKind) String() string {
	switch k {
	case EventCandidate:
		return "candidate"
	case EventRetract:
		return "retract"
	case EventSnapshot:
		return "snapshot"
	case EventChannelState:
		return "channel-state"
	case EventRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one item of the adapter's output.
type Event struct {
	Kind         EventKind
	Notification model.Notification
	Tasks        []model.Task
	Live         bool
	Err          error
}

// NotificationAPI is the catch-up side of the notification store.
type NotificationAPI interface {
	FetchPending(ctx context.Context) ([]model.Notification, error)
}

// TaskSource provides task snapshots.
type TaskSource interface {
	FetchTasks(ctx context.Context) ([]model.Task, error)
}

// Stream is an open push subscription.
type Stream interface {
	Next(ctx context.Context) (push.Message, error)
	Close() error
}

// SubscribeFunc opens a push subscription scoped to userID.
type SubscribeFunc func(ctx context.Context, userID string) (Stream, error)

// PushSubscribe adapts a push.Subscriber.
func PushSubscribe(s *push.Subscriber) SubscribeFunc {
	return func(ctx context.Context, userID string) (Stream, error) {
		stream, err := s.Subscribe(ctx, userID)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// Logger is the minimal logging surface the adapter needs.
type Logger interface {
	Printf(format string, args ...any)
}

// Options configures an Adapter.
type Options struct {
	Notifications NotificationAPI
	Tasks         TaskSource
	Subscribe     SubscribeFunc
	UserID        string

	// SelfPopped reports whether this session acknowledged id. Popped
	// updates for such ids are echoes and do not retract.
	SelfPopped func(id string) bool

	PollInterval   time.Duration
	ReconnectDelay time.Duration
	Logger         Logger
}

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// Adapter runs every source and normalizes their output into Events.
type Adapter struct {
	opts      Options
	events    chan Event
	triggerCh chan struct{}

	mu   sync.Mutex
	live bool
}

// New creates an Adapter. Subscribe and Tasks may be nil to disable the
// push stream or the snapshot pull.
func New(opts Options) *Adapter {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 60 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.SelfPopped == nil {
		opts.SelfPopped = func(string) bool { return false }
	}
	return &Adapter{
		opts:      opts,
		events:    make(chan Event, 64),
		triggerCh: make(chan struct{}, 1),
	}
}

// Events returns the output channel. It is closed when Run returns.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// Live reports whether the push stream is currently connected.
func (a *Adapter) Live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Refresh triggers an immediate task snapshot.
func (a *Adapter) Refresh() {
	select {
	case a.triggerCh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
}

func (a *Adapter) logf(format string, args ...any) {
	if a.opts.Logger == nil {
		return
	}
	a.opts.Logger.Printf(format, args...)
}

// Run performs the catch-up fetch, opens the push stream and polls task
// snapshots until ctx is cancelled. No source failure is fatal.
func (a *Adapter) Run(ctx context.Context) {
	defer close(a.events)

	a.catchUp(ctx)

	var wg sync.WaitGroup
	if a.opts.Subscribe != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.listen(ctx)
		}()
	} else {
		a.setLive(ctx, false)
	}

	if a.opts.Tasks != nil {
		a.pollSnapshots(ctx)
	} else {
		<-ctx.Done()
	}
	wg.Wait()
}

// catchUp emits every pending notification exactly once per Run.
func (a *Adapter) catchUp(ctx context.Context) {
	if a.opts.Notifications == nil {
		return
	}
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	pending, err := a.opts.Notifications.FetchPending(fetchCtx)
	if err != nil {
		a.logf("delivery: catch-up fetch failed: %v", err)
		return
	}
	for _, n := range pending {
		if n.Read || n.Popped() {
			continue
		}
		if !a.emit(ctx, Event{Kind: EventCandidate, Notification: n}) {
			return
		}
	}
}

// listen keeps a push subscription open, reconnecting with backoff.
func (a *Adapter) listen(ctx context.Context) {
	delay := a.opts.ReconnectDelay
	for {
		stream, err := a.opts.Subscribe(ctx, a.opts.UserID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logf("delivery: push subscribe failed, continuing without live updates: %v", err)
			a.setLive(ctx, false)
		} else {
			delay = a.opts.ReconnectDelay
			a.setLive(ctx, true)
			err = a.consume(ctx, stream)
			stream.Close()
			if ctx.Err() != nil {
				return
			}
			a.logf("delivery: push stream lost: %v", err)
			a.setLive(ctx, false)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > time.Minute {
			delay = time.Minute
		}
	}
}

// consume reads the stream until the connection fails.
func (a *Adapter) consume(ctx context.Context, stream Stream) error {
	for {
		msg, err := stream.Next(ctx)
		if push.IsFrameError(err) {
			a.logf("delivery: dropping push frame: %v", err)
			continue
		}
		if err != nil {
			return err
		}
		if ev, ok := a.classify(msg); ok {
			if !a.emit(ctx, ev) {
				return ctx.Err()
			}
		}
	}
}

// classify maps a change record to an event. Inserts that are already read
// or popped elsewhere are dropped. Updates retract when the row became read
// or was popped by another session, and refresh the row otherwise.
func (a *Adapter) classify(msg push.Message) (Event, bool) {
	n := msg.Notification
	poppedElsewhere := n.Popped() && !a.opts.SelfPopped(n.ID)

	switch msg.Type {
	case push.Insert:
		if n.Read || poppedElsewhere {
			return Event{}, false
		}
		return Event{Kind: EventCandidate, Notification: n}, true
	case push.Update:
		if n.Read || poppedElsewhere {
			return Event{Kind: EventRetract, Notification: n}, true
		}
		return Event{Kind: EventRefresh, Notification: n}, true
	}
	return Event{}, false
}

// pollSnapshots runs the task snapshot loop.
func (a *Adapter) pollSnapshots(ctx context.Context) {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	// Do an initial fetch immediately
	if !a.fetchSnapshot(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.triggerCh:
		}
		if !a.fetchSnapshot(ctx) {
			return
		}
	}
}

func (a *Adapter) fetchSnapshot(ctx context.Context) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	tasks, err := a.opts.Tasks.FetchTasks(fetchCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return false
		}
		a.logf("delivery: task snapshot failed: %v", err)
	}
	return a.emit(ctx, Event{Kind: EventSnapshot, Tasks: tasks, Err: err})
}

func (a *Adapter) setLive(ctx context.Context, live bool) {
	a.mu.Lock()
	a.live = live
	a.mu.Unlock()
	a.emit(ctx, Event{Kind: EventChannelState, Live: live})
}

// emit delivers ev unless ctx is cancelled first.
func (a *Adapter) emit(ctx context.Context, ev Event) bool {
	select {
	case a.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
