// Package supervisor runs task drivers as tracked goroutines, handing
// them the cooperative cancellation flag the registry owns per task id
// (spec.md §4.1 "Cancellation channel"). It is the component a
// task-service facade's start(...) hands execution to (spec.md §4.2).
//
// Grounded on cxumol-FFwebAPI/task.Manager's workerLoop/processTask
// shape: a buffered submission channel drained by a dispatch loop that
// spawns one goroutine per task, tracked so shutdown can drain them.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/shythm/road-cctv-recanalyzer/internal/logx"
	"github.com/shythm/road-cctv-recanalyzer/internal/registry"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"golang.org/x/sync/errgroup"
)

// Control is the handle a Driver uses to poll for cancellation and to
// report progress, backed by the registry's per-task state.
type Control interface {
	// Canceled reports whether Stop(taskID) has been called. Drivers
	// must poll this at every suspension point instead of relying on
	// forced interruption (spec.md §5).
	Canceled() bool
	// Progress updates the task's completion fraction in [0,1].
	Progress(fraction float64)
}

// Driver executes one task to completion (or cancellation, or
// failure). A non-nil error marks the task FAILED with the error's
// message as the reason, unless the error is a taskmodel.CancelError,
// in which case the task is marked CANCELED instead.
type Driver interface {
	Run(ctx context.Context, t *taskmodel.Task, ctl Control) error
}

type submission struct {
	task   *taskmodel.Task
	driver Driver
}

// Supervisor dispatches submitted tasks to their driver, serializing
// registry state transitions around each run.
type Supervisor struct {
	reg   *registry.Registry
	queue chan submission
	wg    sync.WaitGroup
}

// New builds a Supervisor bound to reg, with a submission queue of the
// given capacity (mirrors the teacher's buffered taskQueue).
func New(reg *registry.Registry, queueCapacity int) *Supervisor {
	if queueCapacity <= 0 {
		queueCapacity = 64
	}
	return &Supervisor{
		reg:   reg,
		queue: make(chan submission, queueCapacity),
	}
}

// Run starts the dispatch loop and the periodic terminal-task log,
// joined under an errgroup, and blocks until ctx is canceled and every
// in-flight worker has returned.
func (s *Supervisor) Run(ctx context.Context, logInterval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.dispatchLoop(ctx) })
	g.Go(func() error { return s.terminalLogLoop(ctx, logInterval) })
	err := g.Wait()
	s.wg.Wait()
	return err
}

// Submit enqueues a task for execution by driver. The task must
// already exist in the registry in taskmodel.StatePending.
func (s *Supervisor) Submit(task *taskmodel.Task, driver Driver) {
	s.queue <- submission{task: task, driver: driver}
}

func (s *Supervisor) dispatchLoop(ctx context.Context) error {
	l := logx.Component("supervisor")
	for {
		select {
		case <-ctx.Done():
			return nil
		case sub := <-s.queue:
			s.wg.Add(1)
			go func(sub submission) {
				defer s.wg.Done()
				s.runOne(ctx, sub)
			}(sub)
			l.Debug().Str("task", sub.task.ID).Msg("task dispatched")
		}
	}
}

func (s *Supervisor) runOne(ctx context.Context, sub submission) {
	l := logx.Component("supervisor")
	task, driver := sub.task, sub.driver

	if s.reg.IsCanceled(task.ID) {
		_, _ = s.reg.Update(task.ID, taskmodel.StateCanceled, "canceled before it began running")
		return
	}

	if _, err := s.reg.Update(task.ID, taskmodel.StateStarted, ""); err != nil {
		l.Error().Err(err).Str("task", task.ID).Msg("failed to mark task started")
		return
	}

	ctl := &registryControl{reg: s.reg, taskID: task.ID}
	err := driver.Run(ctx, task, ctl)

	switch {
	case err == nil:
		if _, perr := s.reg.Update(task.ID, taskmodel.StateFinished, ""); perr != nil {
			l.Error().Err(perr).Str("task", task.ID).Msg("failed to mark task finished")
		}
	case taskmodel.IsCancel(err):
		if _, perr := s.reg.Update(task.ID, taskmodel.StateCanceled, err.Error()); perr != nil {
			l.Error().Err(perr).Str("task", task.ID).Msg("failed to mark task canceled")
		}
	default:
		l.Warn().Err(err).Str("task", task.ID).Msg("task failed")
		if _, perr := s.reg.Update(task.ID, taskmodel.StateFailed, err.Error()); perr != nil {
			l.Error().Err(perr).Str("task", task.ID).Msg("failed to mark task failed")
		}
	}
}

// terminalLogLoop periodically logs a summary of terminal task counts,
// the idiomatic equivalent of the teacher's cleanupLoop ticker but
// scoped to observability, since spec.md's Non-goals exclude any
// quota/admission or output-lifetime behavior beyond what the output
// catalog's own Delete already provides.
func (s *Supervisor) terminalLogLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := logx.Component("supervisor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			finished, failed, canceled := s.reg.CountTerminal()
			l.Info().
				Int("finished", finished).
				Int("failed", failed).
				Int("canceled", canceled).
				Msg("task summary")
		}
	}
}

type registryControl struct {
	reg    *registry.Registry
	taskID string
}

func (c *registryControl) Canceled() bool { return c.reg.IsCanceled(c.taskID) }

func (c *registryControl) Progress(fraction float64) {
	_ = c.reg.UpdateProgress(c.taskID, fraction)
}
