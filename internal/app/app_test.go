package app

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/presentation"
	"github.com/nhle/taskpulse/internal/ui/board"
	"github.com/nhle/taskpulse/internal/ui/command"
	"github.com/nhle/taskpulse/internal/ui/movepicker"
)

type fakeSession struct {
	changes   chan struct{}
	stack     *presentation.Stack
	tasks     []model.Task
	live      bool
	pending   int
	calls     []string
	allRead   bool
	refreshed int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		changes: make(chan struct{}, 1),
		stack:   presentation.NewStack(presentation.Options{}),
	}
}

func (f *fakeSession) Changes() <-chan struct{}          { return f.changes }
func (f *fakeSession) Active() []presentation.Entry      { return f.stack.Active() }
func (f *fakeSession) Layout() []presentation.Placement  { return f.stack.Layout() }
func (f *fakeSession) Tasks() []model.Task               { return f.tasks }
func (f *fakeSession) Live() bool                        { return f.live }
func (f *fakeSession) Pending() int                      { return f.pending }
func (f *fakeSession) Refresh()                          { f.refreshed++ }
func (f *fakeSession) MarkAllRead(context.Context) error { f.allRead = true; return nil }

func (f *fakeSession) ClosePopup(id string) error {
	f.calls = append(f.calls, "close:"+id)
	_, err := f.stack.Close(id)
	return err
}

func (f *fakeSession) MarkRead(id string) error {
	f.calls = append(f.calls, "read:"+id)
	_, err := f.stack.MarkRead(id)
	return err
}

func (f *fakeSession) StartTask(id string) error {
	f.calls = append(f.calls, "start:"+id)
	return nil
}

func (f *fakeSession) CompleteTask(id string) error {
	f.calls = append(f.calls, "complete:"+id)
	return nil
}

func (f *fakeSession) MoveTask(id string, status model.TaskStatus) error {
	f.calls = append(f.calls, "move:"+id+":"+string(status))
	return nil
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(t *testing.T, s Session) Model {
	t.Helper()
	updated, _ := New(s).Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return updated.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestHeaderShowsBadgeChannelAndPending(t *testing.T) {
	s := newFakeSession()
	s.live = true
	s.pending = 2
	s.stack.Push(model.Notification{ID: "n-1", Title: "Hello"}, time.Now())
	m := sized(t, s)

	view := m.View()
	assert.Contains(t, view, "taskpulse [1]")
	assert.Contains(t, view, "live · 2 pending")
	assert.Contains(t, view, "Hello")

	s.live = false
	s.pending = 0
	_ = s.ClosePopup("n-1")
	view = m.View()
	assert.Contains(t, view, "offline")
	assert.NotContains(t, view, "[1]")
}

func TestPopupKeysActOnNewest(t *testing.T) {
	s := newFakeSession()
	now := time.Now()
	s.stack.Push(model.Notification{ID: "n-1"}, now)
	s.stack.Push(model.Notification{ID: "n-2"}, now)
	m := sized(t, s)

	m, _ = update(t, m, keyMsg("m"))
	m, _ = update(t, m, keyMsg("x"))
	assert.Equal(t, []string{"read:n-2", "close:n-1"}, s.calls)

	_, cmd := update(t, m, keyMsg("M"))
	require.NotNil(t, cmd)
	res, ok := cmd().(actionResultMsg)
	require.True(t, ok)
	assert.NoError(t, res.err)
	assert.True(t, s.allRead)
}

func TestReminderReadShowsError(t *testing.T) {
	s := newFakeSession()
	s.stack.Push(model.Notification{ID: model.ReminderID("t-1")}, time.Now())
	m := sized(t, s)

	m, _ = update(t, m, keyMsg("m"))
	assert.Contains(t, m.View(), presentation.ErrNoReadState.Error())
}

func TestTransitionsReachSession(t *testing.T) {
	s := newFakeSession()
	s.tasks = []model.Task{{ID: "t-1", Title: "Draft", Status: model.StatusNotStarted}}
	m := sized(t, s)
	m.board.SetTasks(s.tasks)

	m, _ = update(t, m, board.StartTaskMsg{TaskID: "t-1"})
	m, _ = update(t, m, board.CompleteTaskMsg{TaskID: "t-1"})

	m, _ = update(t, m, board.MoveTaskMsg{Task: s.tasks[0]})
	assert.Equal(t, ViewMove, m.currentView)
	m, _ = update(t, m, movepicker.MoveChosenMsg{TaskID: "t-1", Status: model.StatusNotStarted})
	assert.Equal(t, ViewBoard, m.currentView)

	assert.Equal(t, []string{"start:t-1", "complete:t-1", "move:t-1:not_started"}, s.calls)
}

func TestChangedReloadsBoard(t *testing.T) {
	s := newFakeSession()
	m := sized(t, s)
	assert.Contains(t, m.View(), "No tasks yet")

	s.tasks = []model.Task{{ID: "t-1", Title: "Fresh task", Status: model.StatusInProgress}}
	m, cmd := update(t, m, changedMsg{})
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Fresh task")
}

func TestCommandPalette(t *testing.T) {
	s := newFakeSession()
	m := sized(t, s)

	m, _ = update(t, m, keyMsg(":"))
	assert.Equal(t, ViewCommand, m.currentView)

	m, _ = update(t, m, command.CommandMsg("refresh"))
	assert.Equal(t, ViewBoard, m.currentView)
	assert.Equal(t, 1, s.refreshed)

	m, _ = update(t, m, command.CommandMsg("bogus"))
	assert.True(t, strings.Contains(m.View(), `unknown command "bogus"`))
}

func TestHelpToggle(t *testing.T) {
	m := sized(t, newFakeSession())
	m, _ = update(t, m, keyMsg("?"))
	assert.Equal(t, ViewHelp, m.currentView)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewBoard, m.currentView)
}
