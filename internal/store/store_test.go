package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/store"
	"github.com/nhle/taskpulse/tests/testutil"
)

func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	return map[string]store.Store{
		"sqlite": testutil.NewTestStore(t),
		"diskv":  store.NewDiskStore(t.TempDir()),
	}
}

func TestAddShownIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.AddShown(ctx, "n-1"))
			require.NoError(t, s.AddShown(ctx, "n-1"))
			require.NoError(t, s.AddShown(ctx, "task-reminder-7"))

			ids, err := s.ShownIDs(ctx)
			require.NoError(t, err)
			assert.Len(t, ids, 2)
			assert.Contains(t, ids, "n-1")
			assert.Contains(t, ids, "task-reminder-7")
		})
	}
}

func TestDismissedReminders(t *testing.T) {
	ctx := context.Background()
	deadline := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	moved := deadline.Add(24 * time.Hour)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.AddDismissed(ctx, store.DismissedReminder{
				ID:       "task-reminder-1",
				Deadline: &deadline,
			}))
			require.NoError(t, s.AddDismissed(ctx, store.DismissedReminder{
				ID: "task-reminder-2",
			}))
			// Replacing keeps one entry per id.
			require.NoError(t, s.AddDismissed(ctx, store.DismissedReminder{
				ID:       "task-reminder-1",
				Deadline: &moved,
			}))

			got, err := s.DismissedReminders(ctx)
			require.NoError(t, err)
			require.Len(t, got, 2)
			require.NotNil(t, got["task-reminder-1"].Deadline)
			assert.True(t, got["task-reminder-1"].Deadline.Equal(moved))
			assert.Nil(t, got["task-reminder-2"].Deadline)
			assert.False(t, got["task-reminder-2"].DismissedAt.IsZero())

			require.NoError(t, s.RemoveDismissed(ctx, "task-reminder-1"))
			require.NoError(t, s.RemoveDismissed(ctx, "missing"))

			got, err = s.DismissedReminders(ctx)
			require.NoError(t, err)
			assert.Len(t, got, 1)
			assert.Contains(t, got, "task-reminder-2")
		})
	}
}

func TestClearWipesBothSets(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.AddShown(ctx, "n-1"))
			require.NoError(t, s.AddDismissed(ctx, store.DismissedReminder{ID: "task-reminder-1"}))

			require.NoError(t, s.Clear(ctx))

			shown, err := s.ShownIDs(ctx)
			require.NoError(t, err)
			assert.Empty(t, shown)

			dismissed, err := s.DismissedReminders(ctx)
			require.NoError(t, err)
			assert.Empty(t, dismissed)
		})
	}
}

func TestReplaceTasks(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	soon := now.Add(time.Hour)
	later := now.Add(48 * time.Hour)

	first := []model.Task{
		{ID: "a", Title: "Later", Status: model.StatusNotStarted, Deadline: &later, UpdatedAt: now},
		{ID: "b", Title: "Undated", Status: model.StatusInProgress, UpdatedAt: now},
		{ID: "c", Title: "Soon", Status: model.StatusCompleted, Deadline: &soon, CompletedAt: &now, UpdatedAt: now},
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			tasks, err := s.GetTasks(ctx)
			require.NoError(t, err)
			assert.Empty(t, tasks)

			require.NoError(t, s.ReplaceTasks(ctx, first))

			tasks, err = s.GetTasks(ctx)
			require.NoError(t, err)
			require.Len(t, tasks, 3)
			assert.Equal(t, "c", tasks[0].ID)
			assert.Equal(t, "a", tasks[1].ID)
			assert.Equal(t, "b", tasks[2].ID)
			assert.Equal(t, model.StatusCompleted, tasks[0].Status)
			require.NotNil(t, tasks[0].CompletedAt)
			assert.True(t, tasks[0].CompletedAt.Equal(now))
			assert.Nil(t, tasks[2].Deadline)

			require.NoError(t, s.ReplaceTasks(ctx, first[:1]))
			tasks, err = s.GetTasks(ctx)
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			assert.Equal(t, "Later", tasks[0].Title)
		})
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	s, err := store.Open(model.StorageConfig{Backend: model.StorageSQLite, Path: dir + "/data/pulse.db"})
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = store.Open(model.StorageConfig{Backend: model.StorageDiskv, Path: dir + "/kv"})
	require.NoError(t, err)
	assert.IsType(t, &store.DiskStore{}, s)

	_, err = store.Open(model.StorageConfig{Backend: "redis"})
	assert.Error(t, err)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/pulse.db"

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.AddShown(ctx, "n-1"))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	ids, err := s.ShownIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "n-1")
}
