package toast

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/presentation"
)

func stackOf(offsetRows int, now time.Time, ns ...model.Notification) *presentation.Stack {
	s := presentation.NewStack(presentation.Options{OffsetRows: offsetRows, Duration: 6 * time.Second})
	for _, n := range ns {
		s.Push(n, now)
	}
	return s
}

func TestRenderStacksBoxes(t *testing.T) {
	now := time.Now()
	s := stackOf(5, now,
		model.Notification{ID: "n-1", Kind: model.KindEarning, Title: "Payout", Message: "You earned $12"},
		model.Notification{ID: model.ReminderID("t-1"), Kind: model.KindTask, Title: "Deadline approaching", Message: "Report: 1 hour left"},
	)

	out := Render(s.Active(), s.Layout(), 40, now)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 10)

	assert.Contains(t, lines[1], "EARNING")
	assert.Contains(t, lines[1], "Payout")
	assert.Contains(t, lines[3], "6s")
	assert.Contains(t, lines[6], "TASK")
	assert.Contains(t, lines[8], "reminder")
}

func TestRenderHigherZWins(t *testing.T) {
	now := time.Now()
	s := stackOf(2, now,
		model.Notification{ID: "n-1", Title: "First"},
		model.Notification{ID: "n-2", Title: "Second"},
	)

	out := Render(s.Active(), s.Layout(), 40, now)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[1], "First")
	assert.Contains(t, lines[3], "Second")
	assert.NotContains(t, lines[3], "6s", "the first footer is covered by the newer pop-up")
}

func TestRenderTruncates(t *testing.T) {
	now := time.Now()
	s := stackOf(5, now, model.Notification{ID: "n-1", Title: strings.Repeat("long ", 40)})
	out := Render(s.Active(), s.Layout(), 30, now)
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len([]rune(stripANSI(line))), 30)
	}
}

func TestRenderEmpty(t *testing.T) {
	assert.Empty(t, Render(nil, nil, 40, time.Now()))
}

func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEsc = true
		case inEsc && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'):
			inEsc = false
		case !inEsc:
			b.WriteRune(r)
		}
	}
	return b.String()
}
