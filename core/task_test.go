package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{"", TaskPending, true},
		{TaskPending, TaskInProgress, true},
		{TaskPending, TaskCancelled, true},
		{TaskPending, TaskCompleted, false},
		{TaskInProgress, TaskCompleted, true},
		{TaskInProgress, TaskFailed, true},
		{TaskInProgress, TaskCancelled, true},
		{TaskInProgress, TaskPending, false},
		{TaskCompleted, TaskFailed, false},
		{TaskFailed, TaskInProgress, false},
		{TaskCancelled, TaskPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, TaskCompleted.IsTerminal())
	assert.False(t, TaskInProgress.IsTerminal())
}

func TestTask_CloneIsIndependent(t *testing.T) {
	now := Now()
	task := Task{
		ID:        "t1",
		Inputs:    map[string]any{"userInput": "hi"},
		StartedAt: &now,
	}

	c := task.Clone()
	c.Inputs["userInput"] = "changed"
	*c.StartedAt = now.Add(time.Hour)

	assert.Equal(t, "hi", task.Inputs["userInput"])
	assert.Equal(t, now, *task.StartedAt)
}

func TestTask_UserInput(t *testing.T) {
	assert.Equal(t, "a", Task{Inputs: map[string]any{InputUserInput: "a"}, Description: "b"}.UserInput())
	assert.Equal(t, "b", Task{Description: "b", Title: "c"}.UserInput())
	assert.Equal(t, "c", Task{Title: "c"}.UserInput())
}

func TestTaskRequest_ReportProgressClamps(t *testing.T) {
	var got []int
	req := NewTaskRequest(Task{ID: "t"}, 1, func(p int) { got = append(got, p) })
	req.ReportProgress(-5)
	req.ReportProgress(50)
	req.ReportProgress(150)
	assert.Equal(t, []int{0, 50, 100}, got)

	var nilReq *TaskRequest
	assert.NotPanics(t, func() { nilReq.ReportProgress(10) })
}
