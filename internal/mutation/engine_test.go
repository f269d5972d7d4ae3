package mutation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/mutation"
	"github.com/nhle/taskpulse/internal/remote"
	"github.com/nhle/taskpulse/tests/testutil"
)

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *captureLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// setup seeds the backend with tasks and returns an engine wired to it.
func setup(t *testing.T, delay time.Duration, tasks ...model.Task) (*testutil.Backend, *mutation.Engine, *captureLogger) {
	t.Helper()
	b := testutil.NewBackend(t)
	for _, task := range tasks {
		b.PutTask(testutil.TestUserID, task)
	}

	client := remote.NewClient(b.HTTP.URL, b.Token, remote.Options{})
	board := mutation.NewBoard()
	board.Replace(tasks)

	logger := &captureLogger{}
	e := mutation.NewEngine(board, mutation.RemoteDispatcher(client), mutation.Options{
		Delay:  delay,
		Logger: logger,
	})
	return b, e, logger
}

func runEngine(t *testing.T, e *mutation.Engine) {
	t.Helper()
	go func() { _ = e.Run(context.Background()) }()
}

func TestRapidTransitionsAreOptimisticAndOrdered(t *testing.T) {
	const delay = 100 * time.Millisecond
	b, e, _ := setup(t, delay, model.Task{ID: "t-1", Title: "Write report", Status: model.StatusNotStarted})
	runEngine(t, e)

	require.NoError(t, e.Start("t-1"))
	require.NoError(t, e.Complete("t-1"))

	// Local state is final before anything reached the backend.
	task, ok := e.Board().Get("t-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	require.NoError(t, e.Close(context.Background()))
	assert.Zero(t, e.Pending())

	calls := b.StatusCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, model.StatusInProgress, calls[0].Status)
	assert.Equal(t, model.StatusCompleted, calls[1].Status)
	assert.GreaterOrEqual(t, calls[1].ReceivedAt.Sub(calls[0].ReceivedAt), delay)

	stored, ok := b.Task(testutil.TestUserID, "t-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
}

func TestFailedDispatchDoesNotBlockQueue(t *testing.T) {
	b, e, logger := setup(t, 10*time.Millisecond,
		model.Task{ID: "broken", Status: model.StatusNotStarted},
		model.Task{ID: "fine", Status: model.StatusNotStarted},
	)
	b.FailTask("broken")
	runEngine(t, e)

	require.NoError(t, e.Start("broken"))
	require.NoError(t, e.Start("fine"))
	require.NoError(t, e.Close(context.Background()))

	calls := b.StatusCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "broken", calls[0].TaskID)
	assert.Equal(t, "fine", calls[1].TaskID)

	// No rollback of the optimistic change.
	task, _ := e.Board().Get("broken")
	assert.Equal(t, model.StatusInProgress, task.Status)

	require.Len(t, logger.Lines(), 1)
	assert.Contains(t, logger.Lines()[0], "broken")
}

func TestStepTransitionsValidateCurrentStatus(t *testing.T) {
	_, e, _ := setup(t, 0, model.Task{ID: "t-1", Status: model.StatusNotStarted})

	assert.ErrorIs(t, e.Complete("t-1"), mutation.ErrInvalidTransition)
	assert.ErrorIs(t, e.Start("missing"), mutation.ErrUnknownTask)
	assert.ErrorIs(t, e.Move("missing", model.StatusCompleted), mutation.ErrUnknownTask)

	require.NoError(t, e.Move("t-1", model.StatusCompleted))
	assert.ErrorIs(t, e.Start("t-1"), mutation.ErrInvalidTransition)
	assert.Equal(t, 1, e.Pending())
}

func TestSnapshotKeepsUndispatchedChanges(t *testing.T) {
	_, e, _ := setup(t, 0,
		model.Task{ID: "t-1", Status: model.StatusNotStarted},
		model.Task{ID: "t-2", Status: model.StatusNotStarted},
	)

	require.NoError(t, e.Start("t-1"))
	e.ApplySnapshot([]model.Task{
		{ID: "t-1", Status: model.StatusNotStarted},
		{ID: "t-2", Status: model.StatusCompleted},
		{ID: "t-3", Status: model.StatusInProgress},
	})

	got := map[string]model.TaskStatus{}
	for _, task := range e.Board().Tasks() {
		got[task.ID] = task.Status
	}
	assert.Equal(t, map[string]model.TaskStatus{
		"t-1": model.StatusInProgress,
		"t-2": model.StatusCompleted,
		"t-3": model.StatusInProgress,
	}, got)
}

func TestClosedEngineRejectsTransitions(t *testing.T) {
	_, e, _ := setup(t, 0, model.Task{ID: "t-1", Status: model.StatusNotStarted})
	runEngine(t, e)
	require.NoError(t, e.Close(context.Background()))

	assert.ErrorIs(t, e.Start("t-1"), mutation.ErrClosed)
	assert.ErrorIs(t, e.Run(context.Background()), mutation.ErrAlreadyRunning)
}

func TestDispatchFuncOrder(t *testing.T) {
	board := mutation.NewBoard()
	board.Replace([]model.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	var mu sync.Mutex
	var seen []string
	e := mutation.NewEngine(board, mutation.DispatchFunc(func(_ context.Context, item model.MutationItem) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, item.EntityID+":"+string(item.Status))
		return nil
	}), mutation.Options{Delay: time.Millisecond})

	require.NoError(t, e.Move("a", model.StatusInProgress))
	require.NoError(t, e.Move("b", model.StatusCompleted))
	require.NoError(t, e.Move("a", model.StatusCompleted))
	require.NoError(t, e.Move("c", model.StatusNotStarted))
	assert.Equal(t, 4, e.Pending())

	runEngine(t, e)
	require.NoError(t, e.Close(context.Background()))

	assert.Equal(t, []string{"a:in_progress", "b:completed", "a:completed", "c:not_started"}, seen)
}

func TestTransitionsRacingCloseAreAllDispatched(t *testing.T) {
	for round := 0; round < 20; round++ {
		board := mutation.NewBoard()
		board.Replace([]model.Task{{ID: "a"}})

		var mu sync.Mutex
		dispatched := 0
		e := mutation.NewEngine(board, mutation.DispatchFunc(func(context.Context, model.MutationItem) error {
			mu.Lock()
			defer mu.Unlock()
			dispatched++
			return nil
		}), mutation.Options{Delay: time.Microsecond})
		runEngine(t, e)

		var accepted int
		var wg sync.WaitGroup
		var acceptedMu sync.Mutex
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					if e.Move("a", model.StatusInProgress) == nil {
						acceptedMu.Lock()
						accepted++
						acceptedMu.Unlock()
					}
				}
			}()
		}
		require.NoError(t, e.Close(context.Background()))
		wg.Wait()

		mu.Lock()
		assert.Equal(t, accepted, dispatched, "round %d", round)
		mu.Unlock()
		assert.Zero(t, e.Pending(), "round %d", round)
	}
}
