// Package output implements the persisted catalog of task-produced
// artifacts described in spec.md §4.4, grounded on
// original_source/cctv_recanalyzer/repo/task_output_file.py.
package output

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/shythm/road-cctv-recanalyzer/internal/logx"
	"github.com/shythm/road-cctv-recanalyzer/internal/storage"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
)

// Catalog is the concurrency-safe, persisted store of Output records.
type Catalog struct {
	mu          sync.Mutex
	outputs     []*taskmodel.Output
	store       *storage.JSONList[taskmodel.Output]
	outputsPath string
}

// Open loads the catalog from dbDir/outputs.json. outputsPath is the
// directory where artifact files themselves live (TASK_OUTPUT_PATH).
func Open(dbDir, outputsPath string) (*Catalog, error) {
	store := storage.NewJSONList[taskmodel.Output](filepath.Join(dbDir, "outputs.json"))
	items, err := store.Load()
	if err != nil {
		return nil, err
	}

	c := &Catalog{store: store, outputsPath: outputsPath}
	for i := range items {
		o := items[i]
		c.outputs = append(c.outputs, &o)
	}
	return c, nil
}

func (c *Catalog) persistLocked() error {
	snapshot := make([]taskmodel.Output, len(c.outputs))
	for i, o := range c.outputs {
		snapshot[i] = *o
	}
	return c.store.Save(snapshot)
}

// Save appends a new output and rewrites the persisted file.
func (c *Catalog) Save(o *taskmodel.Output) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outputs = append(c.outputs, o.Clone())
	return c.persistLocked()
}

// GetByName returns the output named n, or NotFoundError if absent.
func (c *Catalog) GetByName(n string) (*taskmodel.Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, o := range c.outputs {
		if o.Name == n {
			return o.Clone(), nil
		}
	}
	return nil, taskmodel.NewNotFound("output", n)
}

// GetByTaskID returns every output owned by taskid, in insertion order.
func (c *Catalog) GetByTaskID(taskid string) []*taskmodel.Output {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*taskmodel.Output
	for _, o := range c.outputs {
		if o.TaskID == taskid {
			out = append(out, o.Clone())
		}
	}
	return out
}

// GetAll returns every output in the catalog, in insertion order.
func (c *Catalog) GetAll() []*taskmodel.Output {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*taskmodel.Output, len(c.outputs))
	for i, o := range c.outputs {
		out[i] = o.Clone()
	}
	return out
}

// Delete removes every output owned by taskid from the catalog, then
// best-effort deletes the corresponding files. A missing file is not
// an error.
func (c *Catalog) Delete(taskid string) error {
	var removed []*taskmodel.Output

	c.mu.Lock()
	var kept []*taskmodel.Output
	for _, o := range c.outputs {
		if o.TaskID == taskid {
			removed = append(removed, o)
		} else {
			kept = append(kept, o)
		}
	}
	c.outputs = kept
	err := c.persistLocked()
	c.mu.Unlock()

	if err != nil {
		return err
	}

	log := logx.Component("output")
	for _, o := range removed {
		path := filepath.Join(c.outputsPath, o.Name)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove output file")
		}
	}
	return nil
}
