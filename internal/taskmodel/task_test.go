package taskmodel_test

import (
	"testing"

	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/stretchr/testify/assert"
)

func TestCanTransitionPermittedEdges(t *testing.T) {
	cases := []struct {
		from, to taskmodel.State
		want     bool
	}{
		{taskmodel.StatePending, taskmodel.StateStarted, true},
		{taskmodel.StatePending, taskmodel.StateCanceled, true},
		{taskmodel.StatePending, taskmodel.StateFailed, true},
		{taskmodel.StatePending, taskmodel.StateFinished, false},
		{taskmodel.StateStarted, taskmodel.StateFinished, true},
		{taskmodel.StateStarted, taskmodel.StateCanceled, true},
		{taskmodel.StateStarted, taskmodel.StateFailed, true},
		{taskmodel.StateStarted, taskmodel.StatePending, false},
		{taskmodel.StateFinished, taskmodel.StatePending, false},
		{taskmodel.StateFailed, taskmodel.StateStarted, false},
		{taskmodel.StateCanceled, taskmodel.StateStarted, false},
		{taskmodel.StateUndefined, taskmodel.StatePending, false},
		{taskmodel.StatePending, taskmodel.StateUndefined, false},
	}
	for _, c := range cases {
		got := taskmodel.CanTransition(c.from, c.to)
		assert.Equalf(t, c.want, got, "%s -> %s", c.from, c.to)
	}
}

func TestStateIsTerminal(t *testing.T) {
	assert.False(t, taskmodel.StatePending.IsTerminal())
	assert.False(t, taskmodel.StateStarted.IsTerminal())
	assert.True(t, taskmodel.StateFinished.IsTerminal())
	assert.True(t, taskmodel.StateFailed.IsTerminal())
	assert.True(t, taskmodel.StateCanceled.IsTerminal())
}

func TestTaskCloneIsIndependentOfSource(t *testing.T) {
	orig := &taskmodel.Task{ID: "t1", Params: map[string]string{"a": "1"}}
	clone := orig.Clone()
	clone.Params["a"] = "2"
	assert.Equal(t, "1", orig.Params["a"])
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, taskmodel.IsNotFound(taskmodel.NewNotFound("task", "x")))
	assert.True(t, taskmodel.IsValidation(taskmodel.NewValidation("bad")))
	assert.True(t, taskmodel.IsCancel(taskmodel.NewCancel("stopped")))
	assert.False(t, taskmodel.IsNotFound(taskmodel.NewValidation("bad")))
}
