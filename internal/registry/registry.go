// Package registry owns the authoritative state of every task: the
// persisted mapping from task id to Task record, atomic state
// transitions, and the per-task cancellation flag the supervisor's
// workers poll. Grounded on the file-backed repository shape of
// original_source/cctv_recanalyzer/repo/task_item_file.py, rebuilt
// around a single mutual-exclusion guard per spec.md §4.1/§5 instead of
// Python's module-level lock.
package registry

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/shythm/road-cctv-recanalyzer/internal/logx"
	"github.com/shythm/road-cctv-recanalyzer/internal/storage"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
)

// Registry is the concurrency-safe, persisted store of Task records.
type Registry struct {
	mu     sync.Mutex
	tasks  []*taskmodel.Task
	store  *storage.JSONList[taskmodel.Task]
	cancel map[string]*atomicFlag
}

// Open loads the registry from dbDir/tasks.json, recovering any task
// left in a non-terminal state from a prior run (spec.md §3 "On process
// start...").
func Open(dbDir string) (*Registry, error) {
	store := storage.NewJSONList[taskmodel.Task](filepath.Join(dbDir, "tasks.json"))
	items, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load task registry: %w", err)
	}

	r := &Registry{
		store:  store,
		cancel: make(map[string]*atomicFlag),
	}
	for i := range items {
		t := items[i]
		r.tasks = append(r.tasks, &t)
		r.cancel[t.ID] = newAtomicFlag()
	}
	if err := r.recoverLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

// recoverLocked rewrites every PENDING/STARTED task to FAILED. Called
// once from Open, before concurrent access begins, so no lock is taken.
func (r *Registry) recoverLocked() error {
	dirty := false
	for _, t := range r.tasks {
		if t.State == taskmodel.StatePending || t.State == taskmodel.StateStarted {
			t.State = taskmodel.StateFailed
			t.Reason = "task was left in a non-terminal state by a prior process; marked failed on recovery"
			dirty = true
		}
	}
	if !dirty {
		return nil
	}
	logx.Component("registry").Warn().Msg("recovered non-terminal tasks to FAILED")
	return r.persistLocked()
}

func (r *Registry) persistLocked() error {
	snapshot := make([]taskmodel.Task, len(r.tasks))
	for i, t := range r.tasks {
		snapshot[i] = *t
	}
	return r.store.Save(snapshot)
}

// Add appends a new task. It fails if the id already exists.
func (r *Registry) Add(t *taskmodel.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.tasks {
		if existing.ID == t.ID {
			return fmt.Errorf("task id already exists: %s", t.ID)
		}
	}
	r.tasks = append(r.tasks, t.Clone())
	r.cancel[t.ID] = newAtomicFlag()
	return r.persistLocked()
}

// Get returns a snapshot copy of the task with the given id.
func (r *Registry) Get(id string) (*taskmodel.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tasks {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return nil, taskmodel.NewNotFound("task", id)
}

// GetByName returns snapshot copies of every task whose driver label
// matches name, in insertion order.
func (r *Registry) GetByName(name string) []*taskmodel.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*taskmodel.Task
	for _, t := range r.tasks {
		if t.Name == name {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Update atomically transitions id to state with the given reason.
// Transitions out of a terminal state, or into a state not reachable
// from the task's current state, are rejected. The new state is
// durable before Update returns.
func (r *Registry) Update(id string, state taskmodel.State, reason string) (*taskmodel.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tasks {
		if t.ID != id {
			continue
		}
		if !taskmodel.CanTransition(t.State, state) {
			return nil, fmt.Errorf("illegal transition %s -> %s for task %s", t.State, state, id)
		}
		t.State = state
		t.Reason = reason
		if state == taskmodel.StateFinished {
			t.Progress = 1.0
		}
		if err := r.persistLocked(); err != nil {
			return nil, err
		}
		return t.Clone(), nil
	}
	return nil, taskmodel.NewNotFound("task", id)
}

// UpdateProgress sets progress without changing state. progress must be
// non-decreasing; a smaller value is clamped to the current value since
// spec.md §3 requires monotonic progress within an execution.
func (r *Registry) UpdateProgress(id string, progress float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tasks {
		if t.ID == id {
			if progress > t.Progress {
				t.Progress = progress
			}
			return nil
		}
	}
	return taskmodel.NewNotFound("task", id)
}

// Delete removes the task record. It does not cascade to outputs; the
// facade orders that cascade.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, t := range r.tasks {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return taskmodel.NewNotFound("task", id)
	}
	r.tasks = append(r.tasks[:idx], r.tasks[idx+1:]...)
	delete(r.cancel, id)
	return r.persistLocked()
}

// Stop requests cancellation of the task. It is idempotent and
// asynchronous: it sets a flag and returns immediately. Delivery
// happens the next time the driver polls IsCanceled at a suspension
// point.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	flag, ok := r.cancel[id]
	r.mu.Unlock()
	if !ok {
		return taskmodel.NewNotFound("task", id)
	}
	flag.set()
	return nil
}

// IsCanceled reports whether Stop(id) has been called for this task.
func (r *Registry) IsCanceled(id string) bool {
	r.mu.Lock()
	flag, ok := r.cancel[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return flag.isSet()
}

// CountTerminal returns the number of tasks currently in each terminal
// state, used by the supervisor's periodic summary log.
func (r *Registry) CountTerminal() (finished, failed, canceled int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tasks {
		switch t.State {
		case taskmodel.StateFinished:
			finished++
		case taskmodel.StateFailed:
			failed++
		case taskmodel.StateCanceled:
			canceled++
		}
	}
	return finished, failed, canceled
}

// atomicFlag is a tiny boolean guarded by its own mutex; a sync/atomic
// Bool would do equally well but this keeps the zero value obviously
// safe without importing atomic.Bool's go1.19 requirement assumptions.
type atomicFlag struct {
	mu  sync.Mutex
	set_ bool
}

func newAtomicFlag() *atomicFlag { return &atomicFlag{} }

func (f *atomicFlag) set() {
	f.mu.Lock()
	f.set_ = true
	f.mu.Unlock()
}

func (f *atomicFlag) isSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set_
}
