// Package mutation applies task status changes locally at once and replays
// them to the backend through a rate-limited FIFO.
package mutation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nhle/taskpulse/internal/model"
)

// ErrUnknownTask is returned for an id that is not on the board.
var ErrUnknownTask = errors.New("unknown task")

// Board is the locally visible task state. Status changes land here before
// the backend has seen them.
type Board struct {
	mu    sync.Mutex
	tasks map[string]model.Task
}

// NewBoard creates an empty Board.
func NewBoard() *Board {
	return &Board{tasks: make(map[string]model.Task)}
}

// Replace swaps the board contents for a fresh snapshot.
func (b *Board) Replace(tasks []model.Task) {
	next := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		next[t.ID] = t
	}

	b.mu.Lock()
	b.tasks = next
	b.mu.Unlock()
}

// Apply moves task id to status and returns the updated task.
func (b *Board) Apply(id string, status model.TaskStatus, now time.Time) (model.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tasks[id]
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	t.ApplyStatus(status, now)
	b.tasks[id] = t
	return t, nil
}

// Get returns one task.
func (b *Board) Get(id string) (model.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	return t, ok
}

// Tasks returns every task ordered by deadline, undated tasks last.
func (b *Board) Tasks() []model.Task {
	b.mu.Lock()
	out := make([]model.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		out = append(out, t)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Deadline, out[j].Deadline
		switch {
		case di == nil && dj == nil:
			return out[i].Title < out[j].Title
		case di == nil:
			return false
		case dj == nil:
			return true
		case !di.Equal(*dj):
			return di.Before(*dj)
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// ByStatus returns the tasks in one board column.
func (b *Board) ByStatus(status model.TaskStatus) []model.Task {
	var out []model.Task
	for _, t := range b.Tasks() {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}
