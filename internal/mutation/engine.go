package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/remote"
)

var (
	// ErrClosed is returned by RequestTransition after Close.
	ErrClosed = errors.New("mutation engine closed")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("mutation engine already running")
	// ErrInvalidTransition is returned by Start and Complete when the task is
	// not in the state they move from.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DefaultDelay is the minimum gap between two remote dispatches.
const DefaultDelay = 500 * time.Millisecond

// dispatchTimeout bounds a single remote call.
const dispatchTimeout = 30 * time.Second

// Dispatcher sends one mutation to the backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, item model.MutationItem) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, item model.MutationItem) error

// Dispatch calls f.
func (f DispatchFunc) Dispatch(ctx context.Context, item model.MutationItem) error {
	return f(ctx, item)
}

// TaskUpdater is the remote call a status mutation maps to.
type TaskUpdater interface {
	UpdateTaskStatus(ctx context.Context, taskID string, update remote.StatusUpdate) error
}

// RemoteDispatcher turns queued items into task status updates. Completing
// a task sends the time it was completed locally.
func RemoteDispatcher(u TaskUpdater) Dispatcher {
	return DispatchFunc(func(ctx context.Context, item model.MutationItem) error {
		update := remote.StatusUpdate{Status: item.Status}
		if item.Status == model.StatusCompleted {
			at := item.EnqueuedAt.UTC()
			update.CompletedAt = &at
		}
		return u.UpdateTaskStatus(ctx, item.EntityID, update)
	})
}

// Logger is the minimal logging surface the engine needs.
type Logger interface {
	Printf(format string, args ...any)
}

// Options configures an Engine.
type Options struct {
	Delay  time.Duration
	Logger Logger
	// OnChange is called after every local board change.
	OnChange func()
}

// Engine applies transitions to the Board at once and forwards them to the
// Dispatcher one at a time, oldest first.
type Engine struct {
	board      *Board
	dispatcher Dispatcher
	queue      *queue
	delay      time.Duration
	logger     Logger
	onChange   func()
	now        func() time.Time

	mu       sync.Mutex
	running  bool
	closed   bool
	inflight *model.MutationItem
	done     chan struct{}
	cancel   context.CancelFunc
}

// NewEngine creates an Engine. Nothing is dispatched until Run is called.
func NewEngine(board *Board, d Dispatcher, opts Options) *Engine {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	return &Engine{
		board:      board,
		dispatcher: d,
		queue:      newQueue(),
		delay:      opts.Delay,
		logger:     opts.Logger,
		onChange:   opts.OnChange,
		now:        time.Now,
		done:       make(chan struct{}),
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}

// Board returns the board the engine writes to.
func (e *Engine) Board() *Board {
	return e.board
}

// RequestTransition moves a task to status locally and queues the remote
// update. It returns once the local change is visible.
func (e *Engine) RequestTransition(entityID string, status model.TaskStatus) error {
	// Held until the item is queued, so Close never sees a half-made change.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	now := e.now()
	if _, err := e.board.Apply(entityID, status, now); err != nil {
		e.mu.Unlock()
		return err
	}
	e.queue.Enqueue(model.MutationItem{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		Status:     status,
		EnqueuedAt: now,
	})
	e.mu.Unlock()

	e.changed()
	return nil
}

// Start moves a not started task to in progress.
func (e *Engine) Start(id string) error {
	return e.step(id, model.StatusNotStarted)
}

// Complete moves an in progress task to completed.
func (e *Engine) Complete(id string) error {
	return e.step(id, model.StatusInProgress)
}

// Move sets any status.
func (e *Engine) Move(id string, status model.TaskStatus) error {
	return e.RequestTransition(id, status)
}

func (e *Engine) step(id string, from model.TaskStatus) error {
	t, ok := e.board.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if t.Status != from {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, t.Status)
	}
	next, _ := from.Next()
	return e.RequestTransition(id, next)
}

// ApplySnapshot replaces the board with a backend snapshot, then replays
// every mutation the backend has not acknowledged yet so a snapshot taken
// before a dispatch does not undo the local change.
func (e *Engine) ApplySnapshot(tasks []model.Task) {
	e.mu.Lock()
	var pending []model.MutationItem
	if e.inflight != nil {
		pending = append(pending, *e.inflight)
	}
	e.mu.Unlock()
	pending = append(pending, e.queue.Snapshot()...)

	e.board.Replace(tasks)
	for _, item := range pending {
		if t, ok := e.board.Get(item.EntityID); ok && t.Status != item.Status {
			_, _ = e.board.Apply(item.EntityID, item.Status, item.EnqueuedAt)
		}
	}
	e.changed()
}

// Pending reports how many mutations have not been dispatched yet,
// including one in flight.
func (e *Engine) Pending() int {
	n := e.queue.Len()
	e.mu.Lock()
	if e.inflight != nil {
		n++
	}
	e.mu.Unlock()
	return n
}

// Run dispatches queued mutations until ctx is cancelled or Close has
// drained the queue. Only one worker may be active per engine.
func (e *Engine) Run(ctx context.Context) error {
	ctx, ok := e.claim(ctx)
	if !ok {
		return ErrAlreadyRunning
	}
	return e.work(ctx)
}

// claim marks the engine as having a worker.
func (e *Engine) claim(parent context.Context) (context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil, false
	}
	e.running = true
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	return ctx, true
}

func (e *Engine) work(ctx context.Context) error {
	defer close(e.done)
	defer e.cancel()

	for {
		item, ok := e.queue.TryDequeue()
		if !ok && e.isClosed() {
			// Nothing is enqueued once closed is observed; take what got in first.
			if item, ok = e.queue.TryDequeue(); !ok {
				return nil
			}
		}
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.queue.Wait():
				continue
			}
		}

		e.dispatch(ctx, item)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.delay):
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, item model.MutationItem) {
	e.mu.Lock()
	e.inflight = &item
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	err := e.dispatcher.Dispatch(callCtx, item)
	cancel()

	e.mu.Lock()
	e.inflight = nil
	e.mu.Unlock()

	if err != nil {
		e.logf("mutation: %s -> %s failed: %v", item.EntityID, item.Status, err)
	}
	e.changed()
}

// Close stops accepting transitions and waits for the queue to drain. When
// no worker was started, Close drains the queue itself. If ctx ends first
// the worker is cancelled and ctx.Err is returned.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if workCtx, ok := e.claim(ctx); ok {
		if err := e.work(workCtx); err != nil {
			e.logf("mutation: closed with %d undispatched item(s)", e.queue.Len())
			return err
		}
		return nil
	}

	e.queue.wake()
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		cancel := e.cancel
		e.mu.Unlock()
		cancel()
		<-e.done
		return ctx.Err()
	}
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}
