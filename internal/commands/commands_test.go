package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/devserver"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/store"
)

func writeConfig(t *testing.T) (string, model.StorageConfig) {
	t.Helper()
	dir := t.TempDir()
	storage := model.StorageConfig{Backend: model.StorageDiskv, Path: filepath.Join(dir, "data")}
	path := filepath.Join(dir, "config.yaml")
	cfg := "storage:\n  backend: diskv\n  path: " + storage.Path + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, storage
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := New()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDedupListAndClear(t *testing.T) {
	path, storage := writeConfig(t)

	s, err := store.Open(storage)
	require.NoError(t, err)
	ctx := context.Background()
	deadline := time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddShown(ctx, "n-1"))
	require.NoError(t, s.AddShown(ctx, model.ReminderID("t-1")))
	require.NoError(t, s.AddDismissed(ctx, store.DismissedReminder{
		ID:          model.ReminderID("t-1"),
		Deadline:    &deadline,
		DismissedAt: deadline.Add(-time.Hour),
	}))
	require.NoError(t, s.Close())

	out, err := execute(t, "--config", path, "dedup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "n-1")
	assert.Contains(t, out, "task-reminder-t-1")
	assert.Contains(t, out, "2 shown, 1 dismissed")

	out, err = execute(t, "--config", path, "dedup", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	out, err = execute(t, "--config", path, "dedup", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "n-1")
	assert.Contains(t, out, "0 shown, 0 dismissed")
}

func TestLoginRejectsBadTokens(t *testing.T) {
	_, err := execute(t, "login")
	assert.ErrorContains(t, err, "--token is required")

	_, err = execute(t, "login", "--token", "not-a-jwt")
	assert.ErrorContains(t, err, "token is not usable")
}

func TestCheckToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := devserver.New([]byte("secret"), nil)
	token, err := srv.IssueToken("u-7", time.Hour)
	require.NoError(t, err)

	userID, err := checkToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-7", userID)
}

func TestSeedDemo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := devserver.New([]byte("secret"), nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	seedDemo(srv, "demo", now)

	task, ok := srv.Task("demo", "demo-1")
	require.True(t, ok)
	require.NotNil(t, task.Deadline)
	assert.Equal(t, 90*time.Minute, task.Deadline.Sub(now))

	done, ok := srv.Task("demo", "demo-4")
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, done.Status)
}

func TestDemoNotificationCyclesKinds(t *testing.T) {
	seen := map[model.Kind]bool{}
	for n := 1; n <= len(demoKinds); n++ {
		d := demoNotification(n)
		assert.NotEmpty(t, d.Title)
		seen[d.Kind] = true
	}
	assert.Len(t, seen, len(demoKinds))
}

func TestRootShowsHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	for _, sub := range []string{"run", "devserver", "dedup", "login"} {
		assert.Contains(t, out, sub)
	}
}
