package stream

import (
	"path/filepath"
	"sync"

	"github.com/lithammer/shortuuid/v4"
	"github.com/shythm/road-cctv-recanalyzer/internal/storage"
	"github.com/shythm/road-cctv-recanalyzer/internal/taskmodel"
)

// Catalog is the concurrency-safe, persisted store of Stream entries.
type Catalog struct {
	mu      sync.Mutex
	streams []Stream
	store   *storage.JSONList[Stream]
}

// Open loads the catalog from dbDir/streams.json.
func Open(dbDir string) (*Catalog, error) {
	store := storage.NewJSONList[Stream](filepath.Join(dbDir, "streams.json"))
	items, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Catalog{streams: items, store: store}, nil
}

func (c *Catalog) persistLocked() error {
	return c.store.Save(c.streams)
}

// Add inserts a new stream entry, rejecting a duplicate name.
func (c *Catalog) Add(name string, coordX, coordY float64) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.streams {
		if s.Name == name {
			return Stream{}, taskmodel.NewValidation("stream already exists: " + name)
		}
	}
	s := Stream{ID: shortuuid.New(), Name: name, CoordX: coordX, CoordY: coordY, Avail: true}
	c.streams = append(c.streams, s)
	if err := c.persistLocked(); err != nil {
		return Stream{}, err
	}
	return s, nil
}

// Delete removes the stream named name and returns the removed entry.
func (c *Catalog) Delete(name string) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.streams {
		if s.Name == name {
			c.streams = append(c.streams[:i], c.streams[i+1:]...)
			if err := c.persistLocked(); err != nil {
				return Stream{}, err
			}
			return s, nil
		}
	}
	return Stream{}, taskmodel.NewNotFound("stream", name)
}

// GetByName returns the stream named name.
func (c *Catalog) GetByName(name string) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.streams {
		if s.Name == name {
			return s, nil
		}
	}
	return Stream{}, taskmodel.NewNotFound("stream", name)
}

// GetAll returns every stream entry, in insertion order.
func (c *Catalog) GetAll() []Stream {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Stream, len(c.streams))
	copy(out, c.streams)
	return out
}
