package main

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isQuit(t *testing.T, cmd tea.Cmd) bool {
	t.Helper()
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestStatusModelQuitsWhenEnded(t *testing.T) {
	m := newStatusModel(nil, "msgbatch_x", time.Second)

	next, cmd := m.Update(jobMsg{job: &batchJob{ID: "msgbatch_x", ProcessingStatus: statusEnded}})
	sm := next.(statusModel)
	assert.True(t, sm.done)
	assert.True(t, isQuit(t, cmd))
	assert.Contains(t, sm.View(), "Batch processing complete!")
}

func TestStatusModelSchedulesNextPoll(t *testing.T) {
	m := newStatusModel(nil, "msgbatch_x", time.Second)

	job := &batchJob{
		ID:               "msgbatch_x",
		ProcessingStatus: "in_progress",
		RequestCounts:    requestCounts{Processing: 3, Succeeded: 1},
	}
	next, cmd := m.Update(jobMsg{job: job})
	sm := next.(statusModel)
	assert.False(t, sm.done)
	require.NotNil(t, cmd, "an in-progress job schedules another poll")

	view := sm.View()
	assert.Contains(t, view, "in_progress")
	assert.Contains(t, view, "3")
	assert.Contains(t, view, "polling every 1s")
}

func TestStatusModelQuitsOnError(t *testing.T) {
	m := newStatusModel(nil, "msgbatch_x", time.Second)

	next, cmd := m.Update(jobMsg{err: fmt.Errorf("boom")})
	sm := next.(statusModel)
	require.Error(t, sm.err)
	assert.True(t, isQuit(t, cmd))
	assert.Contains(t, sm.View(), "boom")
}

func TestStatusModelQuitsOnKeypress(t *testing.T) {
	m := newStatusModel(nil, "msgbatch_x", time.Second)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.True(t, isQuit(t, cmd))
}
