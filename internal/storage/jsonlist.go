// Package storage provides a generic, crash-safe JSON-list file store
// shared by the task registry, output catalog, and stream catalog.
//
// Durability follows the same shape as ManuGH-xg2g's playlist/XMLTV
// writers (internal/jobs/write_unix.go): write to a pending temp file,
// fsync, then atomically rename over the destination. Callers hold
// their own mutex around the in-memory slice; JSONList only owns the
// file round-trip.
package storage

import (
	"encoding/json"
	"os"

	"github.com/google/renameio/v2"
)

// JSONList persists a slice of T as a single JSON array file.
type JSONList[T any] struct {
	path string
}

// NewJSONList returns a store rooted at path. The file is created on
// first Save; Load tolerates a missing file by returning an empty slice.
func NewJSONList[T any](path string) *JSONList[T] {
	return &JSONList[T]{path: path}
}

// Load deserializes the persisted array. A missing file is not an
// error and yields a nil slice.
func (s *JSONList[T]) Load() ([]T, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Save atomically overwrites the persisted array with items.
func (s *JSONList[T]) Save(items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return err
	}
	defer pending.Cleanup()

	if _, err := pending.Write(data); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
