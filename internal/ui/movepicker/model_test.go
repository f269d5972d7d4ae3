package movepicker

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/taskpulse/internal/model"
)

func TestClosedPickerIgnoresInput(t *testing.T) {
	m := New(80, 24)
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, m.View())
}

func TestOpenPreselectsCurrentStatus(t *testing.T) {
	m := New(80, 24)
	m.Open(model.Task{ID: "t-1", Title: "Draft", Status: model.StatusInProgress})

	assert.Equal(t, model.StatusInProgress, m.fb.status)
	assert.Contains(t, m.View(), "Draft")
	assert.Contains(t, m.View(), "In progress")
}
