// Package facade implements the uniform task-service surface spec.md
// §4.2 describes for each driver: a label, a parameter schema, the
// tasks belonging to that driver, and start/stop/delete. It is the
// only thing the HTTP layer talks to — never the registry, output
// catalog, or supervisor directly.
//
// Grounded on original_source/cctv_recanalyzer/core/srv.py's per-driver
// service object (validate params, build task, hand off to the worker
// pool, expose stop/delete) rebuilt around internal/supervisor.Driver.
package facade

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shythm/road-cctv-recanalyzer/internal/logx"
	"github.com/shythm/road-cctv-recanalyzer/internal/output"
	"github.com/shythm/road-cctv-recanalyzer/internal/registry"
	"github.com/shythm/road-cctv-recanalyzer/internal/supervisor"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
	"github.com/lithammer/shortuuid/v4"
)

// Facade is the per-driver surface described in spec.md §4.2.
type Facade struct {
	Label   string
	Params  []taskmodel.ParamMeta
	reg     *registry.Registry
	outputs *output.Catalog
	sup     *supervisor.Supervisor
	driver  supervisor.Driver
	// submit, when non-nil, replaces the plain sup.Submit call — used
	// by Track to route through the FIFO queue instead of the
	// supervisor's ordinary concurrent dispatch.
	submit func(*taskmodel.Task, supervisor.Driver)
}

// New builds a Facade for one driver. submit may be nil, in which case
// tasks are handed to sup.Submit directly.
func New(label string, params []taskmodel.ParamMeta, reg *registry.Registry, outputs *output.Catalog, sup *supervisor.Supervisor, driver supervisor.Driver, submit func(*taskmodel.Task, supervisor.Driver)) *Facade {
	if submit == nil {
		submit = sup.Submit
	}
	return &Facade{
		Label:   label,
		Params:  params,
		reg:     reg,
		outputs: outputs,
		sup:     sup,
		driver:  driver,
		submit:  submit,
	}
}

// List returns every task belonging to this driver, in insertion order.
func (f *Facade) List() []*taskmodel.Task {
	return f.reg.GetByName(f.Label)
}

// Validate checks params against the facade's schema: every non-
// optional entry must be present, and every present entry's value must
// parse as at least one of its accepted kinds. It never rejects on an
// output-type tag (video/mp4, text/detection) beyond presence — the
// driver itself resolves whether the named output actually has that
// type.
func (f *Facade) Validate(params map[string]string) error {
	for _, p := range f.Params {
		v, present := params[p.Name]
		if !present || v == "" {
			if !p.Optional {
				return taskmodel.NewValidation(fmt.Sprintf("missing required parameter %q", p.Name))
			}
			continue
		}
		if err := validateAccept(p, v); err != nil {
			return err
		}
	}
	return nil
}

func validateAccept(p taskmodel.ParamMeta, v string) error {
	var lastErr error
	for _, kind := range p.Accept {
		switch kind {
		case taskmodel.PrimitiveStr:
			return nil
		case taskmodel.PrimitiveFloat:
			if _, err := strconv.ParseFloat(v, 64); err == nil {
				return nil
			}
			lastErr = taskmodel.NewValidation(fmt.Sprintf("parameter %q is not a valid float: %q", p.Name, v))
		case taskmodel.PrimitiveDatetime:
			if _, err := time.Parse(time.RFC3339, v); err == nil {
				return nil
			}
			lastErr = taskmodel.NewValidation(fmt.Sprintf("parameter %q is not a valid ISO-8601 timestamp: %q", p.Name, v))
		case taskmodel.PrimitiveJSON:
			// json.Valid would add an import for a one-line check the
			// driver re-validates anyway (the ROI shape, specifically);
			// the facade only confirms the value is non-empty here.
			return nil
		default:
			// An output-type tag (video/mp4, text/detection): presence
			// is all the facade checks.
			return nil
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return nil
}

// Start validates params, builds and persists a PENDING task, and hands
// it to the supervisor (or, for a facade built with a custom submit
// func, whatever queue that func implements). It returns the persisted
// task.
func (f *Facade) Start(params map[string]string) (*taskmodel.Task, error) {
	if err := f.Validate(params); err != nil {
		return nil, err
	}

	t := &taskmodel.Task{
		ID:        shortuuid.New(),
		Name:      f.Label,
		Params:    params,
		State:     taskmodel.StatePending,
		CreatedAt: time.Now(),
	}
	if err := f.reg.Add(t); err != nil {
		return nil, taskmodel.NewExternal("failed to persist task", err)
	}

	f.submit(t, f.driver)
	logx.Component("facade").Info().Str("driver", f.Label).Str("task", t.ID).Msg("task submitted")
	return t, nil
}

// Stop requests cancellation of taskid. It is a thin pass-through to
// the registry's cancel flag; the actual state transition happens once
// the driver (or the dispatch loop, for a still-queued task) observes it.
func (f *Facade) Stop(taskid string) error {
	return f.reg.Stop(taskid)
}

// Delete removes every output owned by taskid (cascading file removal)
// and then the task record itself, per spec.md §4.2's ordering.
func (f *Facade) Delete(taskid string) error {
	if _, err := f.reg.Get(taskid); err != nil {
		return err
	}
	if err := f.outputs.Delete(taskid); err != nil {
		return err
	}
	return f.reg.Delete(taskid)
}
