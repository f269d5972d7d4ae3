package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskpulse/internal/keys"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/presentation"
	"github.com/nhle/taskpulse/internal/ui"
	"github.com/nhle/taskpulse/internal/ui/board"
	"github.com/nhle/taskpulse/internal/ui/command"
	helpview "github.com/nhle/taskpulse/internal/ui/help"
	"github.com/nhle/taskpulse/internal/ui/movepicker"
	"github.com/nhle/taskpulse/internal/ui/toast"
)

// Session is the part of notify.Service the UI drives.
type Session interface {
	Changes() <-chan struct{}
	Active() []presentation.Entry
	Layout() []presentation.Placement
	ClosePopup(id string) error
	MarkRead(id string) error
	MarkAllRead(ctx context.Context) error
	StartTask(id string) error
	CompleteTask(id string) error
	MoveTask(id string, status model.TaskStatus) error
	Tasks() []model.Task
	Live() bool
	Pending() int
	Refresh()
}

// changedMsg is delivered whenever the session signals a change.
type changedMsg struct{}

// tickMsg redraws pop-up countdowns.
type tickMsg time.Time

// actionResultMsg reports the outcome of a background action.
type actionResultMsg struct {
	action string
	err    error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewBoard ViewState = iota
	ViewHelp
	ViewCommand
	ViewMove
)

// Model is the root Bubble Tea model: the board with the pop-up column,
// plus the overlays.
type Model struct {
	session      Session
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	board        board.Model
	helpView     helpview.Model
	commandView  command.Model
	movePicker   movepicker.Model
	ready        bool
	message      string
	now          func() time.Time
}

// New creates the root model for a running session.
func New(s Session) Model {
	k := keys.DefaultKeyMap()
	return Model{
		session:     s,
		currentView: ViewBoard,
		keys:        k,
		board:       board.New(k, 80, 22),
		helpView:    helpview.New(k, 80, 22),
		commandView: command.New(80, 22),
		movePicker:  movepicker.New(80, 22),
		now:         time.Now,
	}
}

// Init loads the board and starts listening for session changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.board.SetTasks(m.session.Tasks()),
		waitForChange(m.session.Changes()),
		tick(),
	)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.board.SetSize(w, h)
		m.helpView.SetSize(msg.Width, h)
		m.commandView.SetSize(msg.Width, h)
		m.movePicker.SetSize(msg.Width, h)
		return m.updateActiveView(msg)

	case changedMsg:
		cmd := m.board.SetTasks(m.session.Tasks())
		return m, tea.Batch(cmd, waitForChange(m.session.Changes()))

	case tickMsg:
		return m, tick()

	case actionResultMsg:
		if msg.err != nil {
			m.message = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		}
		return m, nil

	case board.StartTaskMsg:
		m.message = errText(m.session.StartTask(msg.TaskID))
		return m, m.board.SetTasks(m.session.Tasks())

	case board.CompleteTaskMsg:
		m.message = errText(m.session.CompleteTask(msg.TaskID))
		return m, m.board.SetTasks(m.session.Tasks())

	case board.MoveTaskMsg:
		m.previousView = m.currentView
		m.currentView = ViewMove
		return m, m.movePicker.Open(msg.Task)

	case movepicker.MoveChosenMsg:
		m.currentView = ViewBoard
		m.message = errText(m.session.MoveTask(msg.TaskID, msg.Status))
		return m, m.board.SetTasks(m.session.Tasks())

	case movepicker.MoveCancelMsg:
		m.currentView = ViewBoard
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(string(msg))

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if key.Matches(msg, m.keys.Back) && m.currentView != ViewBoard {
			m.currentView = ViewBoard
			return m, nil
		}
		if m.currentView == ViewMove {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit) && m.currentView == ViewBoard:
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help) && m.currentView != ViewCommand:
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Command) && m.currentView == ViewBoard:
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()
		}

		if m.currentView == ViewBoard {
			if handled, cmd := m.handlePopupKeys(msg); handled {
				return m, cmd
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handlePopupKeys acts on the newest pop-up.
func (m *Model) handlePopupKeys(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ClosePopup):
		if n, ok := m.newestPopup(); ok {
			m.message = errText(m.session.ClosePopup(n.ID))
		}
		return true, nil

	case key.Matches(msg, m.keys.MarkRead):
		if n, ok := m.newestPopup(); ok {
			m.message = errText(m.session.MarkRead(n.ID))
		}
		return true, nil

	case key.Matches(msg, m.keys.MarkAllRead):
		return true, m.markAllRead()

	case key.Matches(msg, m.keys.Refresh):
		m.session.Refresh()
		return true, nil
	}
	return false, nil
}

func (m Model) newestPopup() (model.Notification, bool) {
	active := m.session.Active()
	if len(active) == 0 {
		return model.Notification{}, false
	}
	return active[len(active)-1].Notification, true
}

func (m Model) markAllRead() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return actionResultMsg{action: "mark all read", err: s.MarkAllRead(ctx)}
	}
}

// executeCommand handles a command string from the command palette.
func (m Model) executeCommand(cmd string) (tea.Model, tea.Cmd) {
	switch cmd {
	case "refresh", "sync":
		m.session.Refresh()
		return m, nil
	case "read all":
		return m, m.markAllRead()
	case "close all":
		for _, e := range m.session.Active() {
			_ = m.session.ClosePopup(e.Notification.ID)
		}
		return m, nil
	case "help":
		m.previousView = ViewBoard
		m.currentView = ViewHelp
		return m, nil
	case "quit", "q":
		return m, tea.Quit
	default:
		m.message = fmt.Sprintf("unknown command %q", cmd)
		return m, nil
	}
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewBoard:
		m.board, cmd = m.board.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewMove:
		m.movePicker, cmd = m.movePicker.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.title(), m.channelStatus())
	content := m.layout.RenderContent(m.renderMain(), m.renderToasts())
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

func (m Model) renderMain() string {
	switch m.currentView {
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewMove:
		return m.movePicker.View()
	default:
		return m.board.View()
	}
}

func (m Model) renderToasts() string {
	width := ui.ToastWidth
	if m.layout.Width < 2*ui.ToastWidth {
		width = m.layout.Width
	}
	return toast.Render(m.session.Active(), m.session.Layout(), width, m.now())
}

// title carries the badge with the number of pop-ups on screen.
func (m Model) title() string {
	if n := len(m.session.Active()); n > 0 {
		return fmt.Sprintf("taskpulse [%d]", n)
	}
	return "taskpulse"
}

// channelStatus shows the push channel state and undispatched changes.
func (m Model) channelStatus() string {
	status := "offline"
	if m.session.Live() {
		status = "live"
	}
	if n := m.session.Pending(); n > 0 {
		status += fmt.Sprintf(" · %d pending", n)
	}
	return status
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.message != "" && m.currentView == ViewBoard {
		return m.message
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewMove:
		return "enter choose | esc cancel"
	default:
		return "q quit | ? help | s start | c complete | t move | x close | m read | M read all"
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
