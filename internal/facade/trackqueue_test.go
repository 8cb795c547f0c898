package facade_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shythm/road-cctv-recanalyzer/internal/facade"
	"github.com/shythm/road-cctv-recanalyzer/internal/registry"
	"github.com/shythm/road-cctv-recanalyzer/internal/supervisor"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/stretchr/testify/require"
)

func TestTrackQueueRunsAtMostOneJobAtATime(t *testing.T) {
	reg, _, sup := newDeps(t)

	var inFlight int32
	var maxInFlight int32
	var mu sync.Mutex

	makeDriver := func() *fakeDriver {
		return &fakeDriver{run: func(ctx context.Context, task *taskmodel.Task, ctl supervisor.Control) error {
			n := atomic.AddInt32(&inFlight, 1)
			mu.Lock()
			if n > maxInFlight {
				maxInFlight = n
			}
			mu.Unlock()
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return nil
		}}
	}

	alwaysOK := func() error { return nil }
	q := facade.NewTrackQueue(reg, sup, alwaysOK, time.Millisecond)

	ids := []string{"j1", "j2", "j3"}
	for _, id := range ids {
		task := &taskmodel.Task{ID: id, Name: "cctv-track", State: taskmodel.StatePending, CreatedAt: time.Now()}
		require.NoError(t, reg.Add(task))
		q.Submit(task, makeDriver())
	}

	for _, id := range ids {
		waitForState(t, reg, id, taskmodel.StateFinished)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, int32(1), maxInFlight)
}

func TestTrackQueueHonoursCancelBeforeStart(t *testing.T) {
	reg, _, sup := newDeps(t)

	blocked := make(chan struct{})
	blocker := &fakeDriver{run: func(ctx context.Context, task *taskmodel.Task, ctl supervisor.Control) error {
		<-blocked
		return nil
	}}
	ranSecond := false
	second := &fakeDriver{run: func(ctx context.Context, task *taskmodel.Task, ctl supervisor.Control) error {
		ranSecond = true
		return nil
	}}

	alwaysOK := func() error { return nil }
	q := facade.NewTrackQueue(reg, sup, alwaysOK, time.Millisecond)

	t1 := &taskmodel.Task{ID: "first", Name: "cctv-track", State: taskmodel.StatePending, CreatedAt: time.Now()}
	require.NoError(t, reg.Add(t1))
	q.Submit(t1, blocker)
	waitForState(t, reg, t1.ID, taskmodel.StateStarted)

	t2 := &taskmodel.Task{ID: "second", Name: "cctv-track", State: taskmodel.StatePending, CreatedAt: time.Now()}
	require.NoError(t, reg.Add(t2))
	q.Submit(t2, second)

	require.NoError(t, reg.Stop(t2.ID))
	close(blocked)

	waitForState(t, reg, t1.ID, taskmodel.StateFinished)
	waitForState(t, reg, t2.ID, taskmodel.StateCanceled)
	require.False(t, ranSecond)
}

// TestTrackQueueHonoursCancelDuringResourceWait covers cancellation that
// arrives while a job is already at the head of the queue but stuck
// waiting on the resource guard — distinct from cancellation observed
// before the semaphore is even acquired. Before the fix this path
// submitted a completionDriver whose done channel the supervisor never
// closes (it marks the task canceled without invoking the driver),
// deadlocking the queue's single worker goroutine forever.
func TestTrackQueueHonoursCancelDuringResourceWait(t *testing.T) {
	reg, _, sup := newDeps(t)

	ran := false
	driver := &fakeDriver{run: func(ctx context.Context, task *taskmodel.Task, ctl supervisor.Control) error {
		ran = true
		return nil
	}}

	var stuckCanceled int32
	guard := func() error {
		if atomic.LoadInt32(&stuckCanceled) != 0 {
			return nil
		}
		return fmt.Errorf("no headroom")
	}
	q := facade.NewTrackQueue(reg, sup, guard, time.Millisecond)

	task := &taskmodel.Task{ID: "stuck", Name: "cctv-track", State: taskmodel.StatePending, CreatedAt: time.Now()}
	require.NoError(t, reg.Add(task))
	q.Submit(task, driver)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, reg.Stop(task.ID))
	atomic.StoreInt32(&stuckCanceled, 1)

	waitForState(t, reg, task.ID, taskmodel.StateCanceled)
	require.False(t, ran)

	// The queue's semaphore slot must have been released: a second job
	// submitted to the same queue afterwards should still be able to run.
	next := &taskmodel.Task{ID: "after", Name: "cctv-track", State: taskmodel.StatePending, CreatedAt: time.Now()}
	require.NoError(t, reg.Add(next))
	q.Submit(next, &fakeDriver{run: func(ctx context.Context, task *taskmodel.Task, ctl supervisor.Control) error { return nil }})
	waitForState(t, reg, next.ID, taskmodel.StateFinished)
}
