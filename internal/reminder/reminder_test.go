package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/model"
)

func at(base time.Time, d time.Duration) *time.Time {
	t := base.Add(d)
	return &t
}

func TestDeadlineComputer(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tasks := []model.Task{
		{ID: "later", Status: model.StatusNotStarted, Deadline: at(now, 150*time.Minute)},
		{ID: "soon", Status: model.StatusInProgress, Deadline: at(now, 90*time.Minute)},
		{ID: "late", Status: model.StatusInProgress, Deadline: at(now, -time.Hour)},
		{ID: "done", Status: model.StatusCompleted, Deadline: at(now, time.Minute)},
		{ID: "undated", Status: model.StatusNotStarted},
		{
			ID: "squeezed", Status: model.StatusInProgress,
			StartAt: at(now, -9*time.Hour), Deadline: at(now, 10*time.Hour),
		},
		{
			ID: "tight", Status: model.StatusInProgress,
			StartAt: at(now, -9*time.Hour), Deadline: at(now, time.Hour+30*time.Minute),
		},
	}

	got := DeadlineComputer{}.Compute(tasks, now)
	require.Len(t, got, 5)

	byID := make(map[string]model.Reminder, len(got))
	for _, r := range got {
		byID[r.Task.ID] = r
	}
	assert.Equal(t, "late", got[0].Task.ID, "ordered by deadline")
	assert.InDelta(t, 90, byID["soon"].MinutesUntilDeadline, 0.001)
	assert.False(t, byID["soon"].IsUrgent)
	assert.True(t, byID["late"].IsUrgent)
	assert.False(t, byID["squeezed"].IsUrgent)
	assert.True(t, byID["tight"].IsUrgent)
	assert.NotContains(t, byID, "done")
	assert.NotContains(t, byID, "undated")
}

func TestNotification(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := model.Reminder{
		Task:                 model.Task{ID: "t-9", Title: "File taxes", Deadline: at(now, 90*time.Minute)},
		MinutesUntilDeadline: 90,
	}

	n := Notification(r, now)
	assert.Equal(t, "task-reminder-t-9", n.ID)
	assert.True(t, n.IsReminder())
	assert.Equal(t, model.KindTask, n.Kind)
	assert.Equal(t, "File taxes: 1 hour left", n.Message)
	require.NotNil(t, n.ReminderDeadline())
	assert.True(t, n.ReminderDeadline().Equal(*r.Task.Deadline))

	r.Task.Deadline = at(now, -30*time.Minute)
	r.MinutesUntilDeadline = -30
	n = Notification(r, now)
	assert.Equal(t, "Task overdue", n.Title)
	assert.Equal(t, "File taxes: 30 minutes overdue", n.Message)
}
