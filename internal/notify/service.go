// Package notify owns a signed-in session: it wires the delivery adapter,
// admission tracker, reminder policy, pop-up stack and mutation engine
// together and exposes the operations the UI calls.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nhle/taskpulse/internal/admission"
	"github.com/nhle/taskpulse/internal/delivery"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/mutation"
	"github.com/nhle/taskpulse/internal/presentation"
	"github.com/nhle/taskpulse/internal/reminder"
	"github.com/nhle/taskpulse/internal/remote"
	"github.com/nhle/taskpulse/internal/store"
)

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("notification service already started")
	// ErrNotStarted is returned by Shutdown before Start.
	ErrNotStarted = errors.New("notification service not started")
)

const (
	// DefaultTickInterval is how often pop-up expiry is checked.
	DefaultTickInterval = 250 * time.Millisecond

	effectTimeout = 15 * time.Second
)

// Remote is the backend surface a session uses.
type Remote interface {
	FetchPending(ctx context.Context) ([]model.Notification, error)
	FetchTasks(ctx context.Context) ([]model.Task, error)
	MarkPopped(ctx context.Context, ids []string) error
	MarkRead(ctx context.Context, ids []string) error
	MarkAllRead(ctx context.Context) error
	UpdateTaskStatus(ctx context.Context, taskID string, update remote.StatusUpdate) error
}

// Logger is the minimal logging surface the service needs.
type Logger interface {
	Printf(format string, args ...any)
}

// Options configures a Service. Store, Remote and UserID are required.
type Options struct {
	Store     store.Store
	Remote    Remote
	Subscribe delivery.SubscribeFunc
	UserID    string
	Computer  reminder.Computer
	Logger    Logger
	Now       func() time.Time

	ReminderThreshold time.Duration
	PopupDuration     time.Duration
	OffsetRows        int
	QueueDelay        time.Duration
	PollInterval      time.Duration
	ReconnectDelay    time.Duration
	TickInterval      time.Duration
}

// Service is one running session.
type Service struct {
	opts    Options
	tracker *admission.Tracker
	policy  *admission.ReminderPolicy
	stack   *presentation.Stack
	engine  *mutation.Engine
	adapter *delivery.Adapter
	changes chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	effects sync.WaitGroup
}

// New builds a Service from its collaborators. Nothing runs until Start.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("notify: store is required")
	}
	if opts.Remote == nil {
		return nil, errors.New("notify: remote is required")
	}
	if opts.UserID == "" {
		return nil, errors.New("notify: user id is required")
	}
	if opts.Computer == nil {
		opts.Computer = reminder.DeadlineComputer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}

	s := &Service{
		opts:    opts,
		changes: make(chan struct{}, 1),
	}
	s.tracker = admission.NewTracker(opts.Store, opts.Remote, opts.Logger)
	s.policy = admission.NewReminderPolicy(s.tracker, opts.Computer, opts.ReminderThreshold)
	s.stack = presentation.NewStack(presentation.Options{
		Duration:   opts.PopupDuration,
		OffsetRows: opts.OffsetRows,
		OnRemove:   s.onRemove,
	})
	s.engine = mutation.NewEngine(mutation.NewBoard(), mutation.RemoteDispatcher(opts.Remote), mutation.Options{
		Delay:    opts.QueueDelay,
		Logger:   opts.Logger,
		OnChange: s.changed,
	})
	s.adapter = delivery.New(delivery.Options{
		Notifications:  opts.Remote,
		Tasks:          opts.Remote,
		Subscribe:      opts.Subscribe,
		UserID:         opts.UserID,
		SelfPopped:     s.tracker.SelfPopped,
		PollInterval:   opts.PollInterval,
		ReconnectDelay: opts.ReconnectDelay,
		Logger:         opts.Logger,
	})
	return s, nil
}

func (s *Service) logf(format string, args ...any) {
	if s.opts.Logger == nil {
		return
	}
	s.opts.Logger.Printf(format, args...)
}

// Start loads the local record, renders the cached board and starts every
// background loop. It returns once the session is running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	if err := s.tracker.Load(ctx); err != nil {
		return err
	}
	if cached, err := s.opts.Store.GetTasks(ctx); err != nil {
		s.logf("notify: reading cached tasks: %v", err)
	} else if len(cached) > 0 {
		s.engine.ApplySnapshot(cached)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	s.goLoop(func() { s.adapter.Run(runCtx) })
	s.goLoop(func() {
		if err := s.engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logf("notify: mutation worker stopped: %v", err)
		}
	})
	s.goLoop(func() { s.consume(runCtx) })
	s.goLoop(func() { s.expireLoop(runCtx) })
	return nil
}

func (s *Service) goLoop(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Shutdown drains the mutation queue, stops every loop and waits for
// background writes. The store is left open for the caller to close.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	cancel := s.cancel
	s.mu.Unlock()

	drainErr := s.engine.Close(ctx)
	cancel()
	s.wg.Wait()
	s.effects.Wait()
	s.tracker.Close()
	return drainErr
}

// Close shuts the session down, allowing the queue ten seconds to drain.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

func (s *Service) consume(ctx context.Context) {
	for ev := range s.adapter.Events() {
		s.handle(ctx, ev)
	}
}

func (s *Service) handle(ctx context.Context, ev delivery.Event) {
	switch ev.Kind {
	case delivery.EventCandidate:
		s.offer(ev.Notification)
	case delivery.EventRetract:
		s.stack.Remove(ev.Notification.ID, model.ReasonRemote)
	case delivery.EventRefresh:
		if s.stack.Refresh(ev.Notification) {
			s.changed()
		}
	case delivery.EventSnapshot:
		if ev.Err != nil {
			if remote.IsAuthError(ev.Err) {
				s.logf("notify: token rejected, run `taskpulse login`")
			}
			return
		}
		s.engine.ApplySnapshot(ev.Tasks)
		s.cacheTasks(ctx, ev.Tasks)
		s.evaluateReminders()
	case delivery.EventChannelState:
		s.changed()
	}
}

func (s *Service) offer(n model.Notification) {
	if !s.tracker.Admit(n) {
		return
	}
	s.stack.Push(n, s.opts.Now())
	s.changed()
}

// evaluateReminders runs the reminder policy against the locally visible
// board, so tasks completed optimistically stop reminding at once.
func (s *Service) evaluateReminders() {
	for _, n := range s.policy.Evaluate(s.engine.Board().Tasks(), s.opts.Now()) {
		s.stack.Push(n, s.opts.Now())
		s.changed()
	}
}

func (s *Service) cacheTasks(ctx context.Context, tasks []model.Task) {
	ctx, cancel := context.WithTimeout(ctx, effectTimeout)
	defer cancel()
	if err := s.opts.Store.ReplaceTasks(ctx, tasks); err != nil {
		s.logf("notify: caching task snapshot: %v", err)
	}
}

func (s *Service) expireLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.stack.Expire(s.opts.Now())
		}
	}
}

// onRemove is the stack's removal hook.
func (s *Service) onRemove(n model.Notification, reason model.RemoveReason) {
	s.tracker.Retire(n, reason)
	s.changed()
}

func (s *Service) changed() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Changes signals whenever anything the UI renders may have changed.
// Signals coalesce.
func (s *Service) Changes() <-chan struct{} {
	return s.changes
}

// Active returns the on-screen pop-ups, oldest first.
func (s *Service) Active() []presentation.Entry {
	return s.stack.Active()
}

// Layout returns where each active pop-up is drawn.
func (s *Service) Layout() []presentation.Placement {
	return s.stack.Layout()
}

// ClosePopup dismisses a pop-up.
func (s *Service) ClosePopup(id string) error {
	_, err := s.stack.Close(id)
	return err
}

// MarkRead removes a server pop-up and marks it read on the backend in the
// background.
func (s *Service) MarkRead(id string) error {
	n, err := s.stack.MarkRead(id)
	if err != nil {
		return err
	}
	s.goEffect("markRead", func(ctx context.Context) error {
		return s.opts.Remote.MarkRead(ctx, []string{n.ID})
	})
	return nil
}

// MarkAllRead removes every server pop-up and marks all the user's
// notifications read.
func (s *Service) MarkAllRead(ctx context.Context) error {
	s.stack.RemoveServerOrigin(model.ReasonRead)
	return s.opts.Remote.MarkAllRead(ctx)
}

// RequestTransition moves a task optimistically and queues the backend
// update.
func (s *Service) RequestTransition(taskID string, status model.TaskStatus) error {
	return s.transitioned(s.engine.RequestTransition(taskID, status))
}

// StartTask moves a task from not started to in progress.
func (s *Service) StartTask(id string) error {
	return s.transitioned(s.engine.Start(id))
}

// CompleteTask moves a task from in progress to completed.
func (s *Service) CompleteTask(id string) error {
	return s.transitioned(s.engine.Complete(id))
}

// transitioned re-runs the reminder policy after a successful local change
// so dismissals of completed tasks are pruned.
func (s *Service) transitioned(err error) error {
	if err != nil {
		return err
	}
	s.evaluateReminders()
	return nil
}

// MoveTask sets any status.
func (s *Service) MoveTask(id string, status model.TaskStatus) error {
	return s.RequestTransition(id, status)
}

// Tasks returns the locally visible board.
func (s *Service) Tasks() []model.Task {
	return s.engine.Board().Tasks()
}

// Task returns one task from the board.
func (s *Service) Task(id string) (model.Task, bool) {
	return s.engine.Board().Get(id)
}

// Live reports whether the push stream is connected.
func (s *Service) Live() bool {
	return s.adapter.Live()
}

// Pending reports how many task updates have not reached the backend.
func (s *Service) Pending() int {
	return s.engine.Pending()
}

// Refresh asks for a task snapshot now.
func (s *Service) Refresh() {
	s.adapter.Refresh()
}

// goEffect runs a named backend call without blocking the caller. Failures
// are logged and not retried.
func (s *Service) goEffect(name string, fn func(ctx context.Context) error) {
	s.effects.Add(1)
	go func() {
		defer s.effects.Done()
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logf("notify: %s failed: %v", name, err)
		}
	}()
}
