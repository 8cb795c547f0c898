package supervisor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shythm/road-cctv-recanalyzer/internal/registry"
	"github.com/shythm/road-cctv-recanalyzer/internal/supervisor"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	run func(ctx context.Context, t *taskmodel.Task, ctl supervisor.Control) error
}

func (f fakeDriver) Run(ctx context.Context, t *taskmodel.Task, ctl supervisor.Control) error {
	return f.run(ctx, t, ctl)
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Open(t.TempDir())
	require.NoError(t, err)
	return reg
}

func waitForState(t *testing.T, reg *registry.Registry, id string, want taskmodel.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := reg.Get(id)
		require.NoError(t, err)
		if got.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s", id, want)
}

func TestSupervisorRunsSuccessfulTaskToFinished(t *testing.T) {
	reg := newRegistry(t)
	task := &taskmodel.Task{ID: "t1", Name: "record", State: taskmodel.StatePending}
	require.NoError(t, reg.Add(task))

	sup := supervisor.New(reg, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { sup.Run(ctx, time.Hour); close(done) }()

	sup.Submit(task, fakeDriver{run: func(ctx context.Context, t *taskmodel.Task, ctl supervisor.Control) error {
		ctl.Progress(0.5)
		return nil
	}})

	waitForState(t, reg, "t1", taskmodel.StateFinished)
	got, err := reg.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Progress)

	cancel()
	<-done
}

func TestSupervisorMarksFailedOnError(t *testing.T) {
	reg := newRegistry(t)
	task := &taskmodel.Task{ID: "t2", Name: "record", State: taskmodel.StatePending}
	require.NoError(t, reg.Add(task))

	sup := supervisor.New(reg, 4)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { sup.Run(ctx, time.Hour) }()
	defer cancel()

	sup.Submit(task, fakeDriver{run: func(ctx context.Context, t *taskmodel.Task, ctl supervisor.Control) error {
		return errors.New("ffmpeg exited with status 1")
	}})

	waitForState(t, reg, "t2", taskmodel.StateFailed)
	got, err := reg.Get("t2")
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg exited with status 1", got.Reason)
}

func TestSupervisorMarksCanceledOnCancelError(t *testing.T) {
	reg := newRegistry(t)
	task := &taskmodel.Task{ID: "t3", Name: "track", State: taskmodel.StatePending}
	require.NoError(t, reg.Add(task))

	sup := supervisor.New(reg, 4)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { sup.Run(ctx, time.Hour) }()
	defer cancel()

	sup.Submit(task, fakeDriver{run: func(ctx context.Context, t *taskmodel.Task, ctl supervisor.Control) error {
		for i := 0; i < 100; i++ {
			if ctl.Canceled() {
				return taskmodel.NewCancel("stopped by caller")
			}
			time.Sleep(time.Millisecond)
		}
		return nil
	}})

	require.NoError(t, reg.Stop("t3"))
	waitForState(t, reg, "t3", taskmodel.StateCanceled)
}
