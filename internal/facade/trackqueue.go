package facade

import (
	"context"
	"time"

	"github.com/shythm/road-cctv-recanalyzer/internal/logx"
	"github.com/shythm/road-cctv-recanalyzer/internal/registry"
	"github.com/shythm/road-cctv-recanalyzer/internal/supervisor"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"golang.org/x/sync/semaphore"
)

// TrackQueue funnels Track submissions through a single-worker FIFO
// queue per spec.md §4.6's "Concurrency": at most one tracking job runs
// at a time, later submissions wait in PENDING, and a queued task
// canceled before its turn is honoured without ever starting.
//
// golang.org/x/sync/semaphore.Weighted grants waiters in FIFO order, so
// a weight-1 semaphore is both the serialization primitive and the
// queue itself — no separate channel is needed.
type TrackQueue struct {
	reg           *registry.Registry
	sup           *supervisor.Supervisor
	sem           *semaphore.Weighted
	guard         ResourceGuard
	retryInterval time.Duration
}

// NewTrackQueue builds a TrackQueue. guard is consulted before each
// queued job is allowed to start; when it reports insufficient
// headroom the worker polls again after retryInterval.
func NewTrackQueue(reg *registry.Registry, sup *supervisor.Supervisor, guard ResourceGuard, retryInterval time.Duration) *TrackQueue {
	if retryInterval <= 0 {
		retryInterval = 5 * time.Second
	}
	return &TrackQueue{
		reg:           reg,
		sup:           sup,
		sem:           semaphore.NewWeighted(1),
		guard:         guard,
		retryInterval: retryInterval,
	}
}

// Submit enqueues a task behind the FIFO semaphore and returns
// immediately; the task runs once it reaches the head of the queue,
// the resource guard passes, and no prior queued task is still
// running.
func (q *TrackQueue) Submit(t *taskmodel.Task, driver supervisor.Driver) {
	go q.run(t, driver)
}

func (q *TrackQueue) run(t *taskmodel.Task, driver supervisor.Driver) {
	ctx := context.Background()
	log := logx.Component("track-queue")

	if err := q.sem.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Str("task", t.ID).Msg("failed to acquire tracking queue slot")
		return
	}
	defer q.sem.Release(1)

	for !q.reg.IsCanceled(t.ID) {
		err := q.guard()
		if err == nil {
			break
		}
		log.Warn().Err(err).Str("task", t.ID).Msg("tracking job waiting on resource headroom")
		time.Sleep(q.retryInterval)
	}

	// Recheck cancellation as the authoritative decision, regardless of
	// why the loop above exited: the supervisor's own dispatch checks
	// IsCanceled before ever invoking the driver and, when canceled,
	// marks the task CANCELED without calling Run — so a completionDriver
	// submitted for an already-canceled task would never have its done
	// channel closed, deadlocking this queue's single worker forever.
	if q.reg.IsCanceled(t.ID) {
		q.sup.Submit(t, driver)
		return
	}

	done := make(chan struct{})
	q.sup.Submit(t, &completionDriver{inner: driver, done: done})
	<-done
}

// completionDriver wraps a Driver so the queue's worker can block on
// the wrapped run's completion before releasing the semaphore for the
// next queued job, since supervisor.Submit itself is fire-and-forget.
type completionDriver struct {
	inner supervisor.Driver
	done  chan struct{}
}

func (d *completionDriver) Run(ctx context.Context, t *taskmodel.Task, ctl supervisor.Control) error {
	defer close(d.done)
	return d.inner.Run(ctx, t, ctl)
}
